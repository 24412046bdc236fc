package webstream

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
)

// newTestServer wires a sink, hub and server the way cmd/streamer does and
// returns them with a running httptest listener.
func newTestServer(t *testing.T, maxClients int) (*framesink.Sink, *httptest.Server) {
	t.Helper()
	sink := framesink.NewSink()
	hub := framesink.NewHub(sink, maxClients)
	server := NewServer(DefaultConfig(), hub, metrics.New())

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(sink.Close)
	return sink, ts
}

// startPublisher feeds the sink with numbered frames until the test ends.
func startPublisher(t *testing.T, sink *framesink.Sink) {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				sink.Publish([]byte(fmt.Sprintf("jpeg-frame-%d", i)))
			}
		}
	}()
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestRootRedirectsToIndex(t *testing.T) {
	_, ts := newTestServer(t, 0)

	resp, err := noRedirectClient().Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("GET / status = %d, want 301", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/index.html" {
		t.Fatalf("GET / location = %q, want /index.html", got)
	}
}

func TestIndexPage(t *testing.T) {
	_, ts := newTestServer(t, 0)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /index.html status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/html" {
		t.Fatalf("GET /index.html content-type = %q, want text/html", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	declared, err := strconv.Atoi(resp.Header.Get("Content-Length"))
	if err != nil {
		t.Fatalf("content-length %q: %v", resp.Header.Get("Content-Length"), err)
	}
	if declared != len(body) {
		t.Fatalf("content-length = %d, body = %d bytes", declared, len(body))
	}
	html := string(body)
	if !strings.Contains(html, `src="stream.mjpg"`) {
		t.Fatalf("index page missing stream tag: %s", html)
	}
	if !strings.Contains(html, `width="640"`) || !strings.Contains(html, `height="480"`) {
		t.Fatalf("index page missing configured dimensions: %s", html)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	_, ts := newTestServer(t, 0)

	for _, path := range []string{"/unknown", "/stream", "/index", "/stream.mjpg/extra"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestNonGETMethodsRejected(t *testing.T) {
	_, ts := newTestServer(t, 0)

	for _, path := range []string{"/", "/index.html", "/stream.mjpg"} {
		resp, err := http.Post(ts.URL+path, "application/octet-stream", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("POST %s status = %d, want 405", path, resp.StatusCode)
		}
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/stream.mjpg", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /stream.mjpg: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /stream.mjpg status = %d, want 405", resp.StatusCode)
	}
}

func TestStreamHeaders(t *testing.T) {
	sink, ts := newTestServer(t, 0)
	startPublisher(t, sink)

	resp, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET /stream.mjpg: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /stream.mjpg status = %d, want 200", resp.StatusCode)
	}
	want := map[string]string{
		"Age":           "0",
		"Cache-Control": "no-cache, private",
		"Pragma":        "no-cache",
		"Content-Type":  "multipart/x-mixed-replace; boundary=FRAME",
	}
	for header, value := range want {
		if got := resp.Header.Get(header); got != value {
			t.Fatalf("header %s = %q, want %q", header, got, value)
		}
	}
}

// readParts consumes n multipart parts from a live stream response and
// verifies each part's Content-Length against the bytes actually read.
func readParts(t *testing.T, body io.Reader, n int) [][]byte {
	t.Helper()
	reader := multipart.NewReader(body, "FRAME")

	var parts [][]byte
	for i := 0; i < n; i++ {
		part, err := reader.NextPart()
		if err != nil {
			t.Fatalf("next part %d: %v", i, err)
		}
		if got := part.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Fatalf("part %d content-type = %q, want image/jpeg", i, got)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("read part %d: %v", i, err)
		}
		declared, err := strconv.Atoi(part.Header.Get("Content-Length"))
		if err != nil {
			t.Fatalf("part %d content-length: %v", i, err)
		}
		if declared != len(data) {
			t.Fatalf("part %d content-length = %d, got %d bytes", i, declared, len(data))
		}
		parts = append(parts, data)
	}
	return parts
}

func TestStreamDeliversPublishedFrames(t *testing.T) {
	sink, ts := newTestServer(t, 0)
	startPublisher(t, sink)

	resp, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET /stream.mjpg: %v", err)
	}
	defer resp.Body.Close()

	parts := readParts(t, resp.Body, 3)
	for i, part := range parts {
		if !strings.HasPrefix(string(part), "jpeg-frame-") {
			t.Fatalf("part %d payload = %q", i, part)
		}
	}
}

// TestStreamIsolation terminates one streaming connection mid-stream and
// checks that a second, concurrently active stream keeps receiving frames.
func TestStreamIsolation(t *testing.T) {
	sink, ts := newTestServer(t, 0)
	startPublisher(t, sink)

	first, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET first stream: %v", err)
	}
	second, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET second stream: %v", err)
	}
	defer second.Body.Close()

	readParts(t, first.Body, 1)
	readParts(t, second.Body, 1)

	// Kill the first connection mid-stream.
	first.Body.Close()

	// The second stream must keep delivering subsequent frames.
	readParts(t, second.Body, 3)
}

func TestStreamClientLimit(t *testing.T) {
	sink, ts := newTestServer(t, 1)
	startPublisher(t, sink)

	first, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET first stream: %v", err)
	}
	defer first.Body.Close()
	readParts(t, first.Body, 1)

	second, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET second stream: %v", err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("second stream status = %d, want 503", second.StatusCode)
	}
}

// TestSinkCloseEndsStreams verifies shutdown releases parked stream
// handlers instead of leaving clients hanging.
func TestSinkCloseEndsStreams(t *testing.T) {
	sink, ts := newTestServer(t, 0)

	resp, err := http.Get(ts.URL + "/stream.mjpg")
	if err != nil {
		t.Fatalf("GET /stream.mjpg: %v", err)
	}
	defer resp.Body.Close()

	// The handler is now parked waiting for a frame that never comes.
	time.Sleep(50 * time.Millisecond)
	sink.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()
	select {
	case <-done:
		// Stream ended; EOF or a benign close error are both fine.
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after sink close")
	}
}
