package mjpeg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/pkg/types"
)

// Boundary is the literal marker separating parts in the multipart stream.
const Boundary = "FRAME"

// ContentType is the top-level content type of the stream response.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// FrameSource is the hub-side view the streaming loop pulls from.
type FrameSource interface {
	Next() (*types.Frame, error)
}

// Writer frames JPEG buffers according to the multipart replace protocol
// and writes them to one HTTP connection. It is a per-connection state
// machine: StartStream once, then WritePart per frame until a write fails.
// A Writer must never be shared between connections.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter wraps one connection's ResponseWriter.
func NewWriter(w http.ResponseWriter) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// StartStream writes the top-level response: status 200, the no-cache trio
// and the multipart content type. Must be called exactly once, before the
// first WritePart.
func (mw *Writer) StartStream() {
	h := mw.w.Header()
	h.Set("Age", "0")
	h.Set("Cache-Control", "no-cache, private")
	h.Set("Pragma", "no-cache")
	h.Set("Content-Type", ContentType)
	mw.w.WriteHeader(http.StatusOK)
	mw.flush()
}

// WritePart writes one frame as a complete part: boundary line, part
// headers carrying the exact byte length, blank line, raw JPEG bytes,
// trailing CRLF. Returns the first write error; the connection is unusable
// after any failure.
func (mw *Writer) WritePart(jpeg []byte) error {
	if _, err := fmt.Fprintf(mw.w,
		"--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		Boundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := mw.w.Write(jpeg); err != nil {
		return err
	}
	if _, err := mw.w.Write([]byte("\r\n")); err != nil {
		return err
	}
	mw.flush()
	return nil
}

// ServeStream runs the connection's streaming loop: stream headers, then
// pull-frame/write-part until the subscription ends or the peer goes away.
// The returned error is the reason the stream stopped; nil when the source
// was canceled or closed cleanly.
func (mw *Writer) ServeStream(src FrameSource) error {
	mw.StartStream()
	for {
		frame, err := src.Next()
		if err != nil {
			if errors.Is(err, framesink.ErrCanceled) || errors.Is(err, framesink.ErrClosed) {
				return nil
			}
			return err
		}
		if err := mw.WritePart(frame.Data); err != nil {
			return err
		}
	}
}

func (mw *Writer) flush() {
	if mw.flusher != nil {
		mw.flusher.Flush()
	}
}
