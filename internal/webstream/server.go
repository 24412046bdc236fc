package webstream

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/logger"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
	"github.com/camkit/mjpeg-streamer/internal/mjpeg"
	"github.com/camkit/mjpeg-streamer/pkg/types"
)

// Server serves the index page and the live MJPEG stream. Each accepted
// connection is handled on its own goroutine by net/http, so a blocked
// streaming client never stalls accept or other connections.
type Server struct {
	cfg     Config
	hub     *framesink.Hub
	metrics *metrics.Metrics
}

// NewServer returns a configured streaming server bound to the shared hub.
func NewServer(cfg Config, hub *framesink.Hub, m *metrics.Metrics) *Server {
	if cfg.StreamWidth <= 0 {
		cfg.StreamWidth = DefaultConfig().StreamWidth
	}
	if cfg.StreamHeight <= 0 {
		cfg.StreamHeight = DefaultConfig().StreamHeight
	}
	if cfg.RenderPage == nil {
		cfg.RenderPage = RenderIndex
	}
	return &Server{cfg: cfg, hub: hub, metrics: m}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.route)
	return mux
}

// route dispatches by exact path: anything outside the contract is a 404,
// and only GET is served.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/":
		http.Redirect(w, r, "/index.html", http.StatusMovedPermanently)
	case "/index.html":
		s.handleIndex(w, r)
	case "/stream.mjpg":
		s.handleStream(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := s.cfg.RenderPage(s.cfg.StreamWidth, s.cfg.StreamHeight)
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	_, _ = w.Write(page)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.hub.Subscribe()
	if err != nil {
		if errors.Is(err, framesink.ErrSubscriberLimit) {
			logger.Warn("Stream", "Rejecting %s: %v", r.RemoteAddr, err)
			http.Error(w, "Too many streaming clients", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Streaming unavailable", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	// Unpark the frame wait as soon as the peer goes away.
	stop := context.AfterFunc(r.Context(), sub.Cancel)
	defer stop()

	s.metrics.StreamsTotal.Add(1)
	s.metrics.ActiveStreams.Store(uint64(s.hub.Active()))
	defer func() {
		s.metrics.FramesSkipped.Add(sub.Skipped())
		s.metrics.ActiveStreams.Store(uint64(s.hub.Active()))
	}()

	logger.Info("Stream", "Client %s connected (active clients: %d)", r.RemoteAddr, s.hub.Active())

	writer := mjpeg.NewWriter(w)
	if err := writer.ServeStream(&meteredSource{sub: sub, m: s.metrics}); err != nil {
		// Peer reset or write failure: tear down this connection only.
		s.metrics.WriteErrors.Add(1)
		logger.Warn("Stream", "Streaming to %s interrupted: %v", r.RemoteAddr, err)
		return
	}
	logger.Info("Stream", "Client %s disconnected (frames=%d, skipped=%d)",
		r.RemoteAddr, sub.Delivered(), sub.Skipped())
}

// meteredSource counts delivered frames and bytes on their way from the
// subscription to the multipart writer.
type meteredSource struct {
	sub *framesink.Subscription
	m   *metrics.Metrics
}

func (ms *meteredSource) Next() (*types.Frame, error) {
	frame, err := ms.sub.Next()
	if err != nil {
		return nil, err
	}
	ms.m.FramesDelivered.Add(1)
	ms.m.BytesStreamed.Add(uint64(frame.Len()))
	return frame, nil
}
