package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"evtxlink/config"
	"evtxlink/evtx"
)

// Server is the query-API HTTP server.
type Server struct {
	stats  *evtx.Stats
	cfg    *config.Config
	web    config.WebConfig
	server *http.Server
	hub    *eventHub
	stopHub func()

	mu      sync.RWMutex
	running bool
}

// NewServer creates a new query API server bound to the given config's
// WebConfig. stats and cfg are shared with the rest of the process and
// read live on every request.
func NewServer(stats *evtx.Stats, cfg *config.Config) *Server {
	return &Server{stats: stats, cfg: cfg, web: cfg.Web}
}

// IsRunning reports whether the HTTP server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start begins serving the query API in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	router, hub, stopHub := NewRouter(s.stats, s.cfg)
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", router))

	addr := fmt.Sprintf("%s:%d", s.web.Host, s.web.Port)
	s.server = &http.Server{Addr: addr, Handler: corsMiddleware(mux)}
	s.hub = hub
	s.stopHub = stopHub

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	s.running = true
	return nil
}

// Stop halts the HTTP server and the SSE hub.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if s.stopHub != nil {
		s.stopHub()
	}
	s.hub = nil
	s.stopHub = nil
	s.running = false
	s.server = nil
	return err
}

// Address returns the server's bind address as an http:// URL.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s:%d", s.web.Host, s.web.Port)
}

// Broadcast pushes a rendered record to every connected SSE client. It
// is a no-op before Start or after Stop.
func (s *Server) Broadcast(event RecordEvent) {
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub != nil {
		hub.Broadcast(event)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
