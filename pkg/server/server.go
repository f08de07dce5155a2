// Package server serves the build output during development and pushes
// live reload events to connected browsers
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
)

// Reserved paths
const (
	LiveReloadPath = "/__wisp/livereload"
	ClientPath     = "/__wisp/livereload.js"
	MetricsPath    = "/__wisp/metrics"
)

// Server serves the destination directory with live reload
type Server struct {
	root    string
	port    int
	logger  logger.Logger
	hub     *LiveReloadHub
	metrics http.Handler

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a development server for cfg.Server. metricsHandler may be
// nil, in which case no metrics endpoint is registered.
func New(cfg types.Config, log logger.Logger, hub *LiveReloadHub, metricsHandler http.Handler) *Server {
	return &Server{
		root:    cfg.Path(cfg.Server.Root),
		port:    cfg.Server.Port,
		logger:  log.WithTarget("server"),
		hub:     hub,
		metrics: metricsHandler,
	}
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(LiveReloadPath, s.hub)
	mux.HandleFunc(ClientPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = w.Write([]byte(ClientScript))
	})
	if s.metrics != nil {
		mux.Handle(MetricsPath, s.metrics)
	}
	mux.Handle("/", noCache(injectLiveReload(http.FileServer(http.Dir(s.root)))))
	return mux
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves in the background. The root does not
// need to contain anything yet.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}

	// No write timeout: SSE connections are long lived
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped", logger.WithField("error", err))
		}
	}(s.http, s.done)

	s.logger.Debug("Listening", logger.WithField("addr", ln.Addr().String()))
	return nil
}

// Addr returns host:port of the bound listener
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return fmt.Sprintf("localhost:%d", s.port)
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("localhost:%d", tcp.Port)
	}
	return s.listener.Addr().String()
}

// Shutdown disconnects live reload clients and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.mu.Unlock()

	s.hub.Shutdown()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
