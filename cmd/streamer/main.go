package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/logger"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
	"github.com/camkit/mjpeg-streamer/internal/producer"
	"github.com/camkit/mjpeg-streamer/internal/webstream"
)

var (
	// Command-line flags
	httpAddr    = flag.String("http", ":8080", "HTTP server address")
	metricsAddr = flag.String("metrics", ":9090", "Metrics server address")
	source      = flag.String("source", "pattern", "Frame source (pattern, stdin)")
	width       = flag.Int("width", 640, "Stream width (pattern source and index page)")
	height      = flag.Int("height", 480, "Stream height (pattern source and index page)")
	fps         = flag.Int("fps", 30, "Pattern source frame rate")
	maxClients  = flag.Int("max-clients", 0, "Maximum streaming clients (0 = unlimited)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "MJPEG streaming server starting...")
	logger.Info("Main", "Log level: %s", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sink := framesink.NewSink()
	hub := framesink.NewHub(sink, *maxClients)

	cfg := webstream.DefaultConfig()
	cfg.Addr = *httpAddr
	cfg.StreamWidth = *width
	cfg.StreamHeight = *height
	server := webstream.NewServer(cfg, hub, m)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Handler(),
	}

	// Start frame source. The goroutine is not joined at shutdown: a pipe
	// source blocked on a quiet fd has no way to observe cancellation until
	// its next read returns, and the process is exiting anyway.
	go func() {
		var err error
		switch *source {
		case "stdin":
			err = producer.NewPipeSource(sink, m, os.Stdin).Run(ctx)
		default:
			err = producer.NewPatternSource(sink, m, *width, *height, *fps).Run(ctx)
		}
		if err != nil {
			logger.Error("Main", "Frame source stopped: %v", err)
		}
	}()

	// Start metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.HandleFunc("/healthz", webstream.HealthHandler(hub, m))
		logger.Info("Main", "Metrics server listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	// Start HTTP server
	go func() {
		logger.Info("Main", "Streaming server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	// Stop the source, then release every parked stream handler.
	cancel()
	sink.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}
