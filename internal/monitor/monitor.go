// Package monitor exposes the HTTP management interface: health probes,
// Prometheus metrics, and per-sender status.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/metrics"
	"github.com/logpipe-io/logpipe/internal/sender"
	"github.com/logpipe-io/logpipe/internal/telemetry"
)

// StatusSource is anything that can report a sender status snapshot.
type StatusSource interface {
	Name() string
	Status() sender.Status
}

// Server wires HTTP handlers to the registered senders.
type Server struct {
	logger *zap.Logger
	router chi.Router

	mu      sync.RWMutex
	senders map[string]StatusSource
}

// NewServer constructs a Server with middleware and routes.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		senders: make(map[string]StatusSource),
	}
	r := chi.NewRouter()
	r.Use(telemetry.Middleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/senders", func(r chi.Router) {
			r.Get("/", s.listSenders)
			r.Get("/{name}", s.getSender)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Register exposes src on the status endpoints and returns the unregister
// hook the sender invokes, best effort, during shutdown.
func (s *Server) Register(src StatusSource) func() error {
	name := src.Name()
	s.mu.Lock()
	s.senders[name] = src
	s.mu.Unlock()
	s.logger.Debug("sender registered", zap.String("sender", name))
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.senders[name]; !ok {
			return fmt.Errorf("sender %s is not registered", name)
		}
		delete(s.senders, name)
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSenders(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	statuses := make([]sender.Status, 0, len(s.senders))
	for _, src := range s.senders {
		statuses = append(statuses, src.Status())
	}
	s.mu.RUnlock()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) getSender(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.RLock()
	src, ok := s.senders[name]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown sender"})
		return
	}
	writeJSON(w, http.StatusOK, src.Status())
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
