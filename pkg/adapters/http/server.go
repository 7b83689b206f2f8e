// Package http exposes trigger sources over HTTP with a chi router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds the parameter bundle accepted by POST /triggers/{name}.
const maxBodyBytes = 1 << 20

// Server serves the trigger API on top of a Dispatcher.
type Server struct {
	Dispatcher ports.Dispatcher
	Streams    *StreamManager

	logger   *slog.Logger
	gatherer prometheus.Gatherer
	version  string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server for d.
func NewServer(d ports.Dispatcher, opts ...Option) *Server {
	s := &Server{
		Dispatcher: d,
		Streams:    NewStreamManager(),
		logger:     logging.NewNop(),
		version:    "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	return s
}

// NewHandler creates a new HTTP handler for the dispatcher.
func NewHandler(d ports.Dispatcher, opts ...Option) http.Handler {
	return NewServer(d, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/triggers", s.ListTriggers)
	r.Post("/triggers/{name}", s.FireTrigger)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

// Hooks returns lifecycle hooks that publish every firing to /events subscribers.
func (s *Server) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFire: func(_ context.Context, e *domain.FireEvent) {
			bytes, err := json.Marshal(firedMessage{Source: e.Source, EventID: e.EventID, Subscribers: e.Subscribers})
			if err != nil {
				return
			}
			s.Streams.Broadcast(e.Source, string(bytes))
		},
	}
}

type firedMessage struct {
	Source      string `json:"source"`
	EventID     string `json:"event_id"`
	Subscribers int    `json:"subscribers"`
}

type fireResponse struct {
	Source string `json:"source"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FireTrigger handles POST /triggers/{name}. The optional JSON object body is
// the parameter bundle handed to the subscribers.
func (s *Server) FireTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	params := map[string]any{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			http.Error(w, "Invalid request body: expected a JSON object", http.StatusBadRequest)
			s.logger.Warn("FireTrigger: invalid request body", "source", name, "err", err)
			return
		}
	}

	err = s.Dispatcher.Fire(r.Context(), name, params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, fireResponse{Source: name, Status: "fired"})
	case errors.Is(err, domain.ErrSourceNotFound):
		http.Error(w, fmt.Sprintf("Unknown trigger: %s", name), http.StatusNotFound)
	case domain.IsHandlerFailure(err):
		// The firing happened; some standalone subscriber failed.
		s.logger.Warn("FireTrigger: handler failed", "source", name, "err", err)
		writeJSON(w, http.StatusOK, fireResponse{Source: name, Status: "failed", Error: err.Error()})
	default:
		http.Error(w, fmt.Sprintf("Fire error: %v", err), http.StatusInternalServerError)
		s.logger.Error("FireTrigger failed", "source", name, "err", err)
	}
}

// ListTriggers handles GET /triggers.
func (s *Server) ListTriggers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Dispatcher.Sources())
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "journey-http",
		"version": s.version,
	})
}

// SubscribeEvents handles GET /events (SSE). With ?source=name only firings of
// that source are streamed.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := r.URL.Query().Get("source")
	if topic == "" {
		topic = allSources
	}
	ch, cancel := s.Streams.Subscribe(topic)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: fire\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// allSources is the StreamManager topic that receives every firing.
const allSources = "*"

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // topic -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[topic]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		}
	}
}

// Subscribers returns the number of open subscriptions on topic.
func (sm *StreamManager) Subscribers(topic string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[topic])
}

// Broadcast sends msg to the subscribers of source and to the catch-all topic.
func (sm *StreamManager) Broadcast(source string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, topic := range []string{source, allSources} {
		for ch := range sm.subscribers[topic] {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				sm.logger.Warn("SSE: client buffer full, dropping message", "topic", topic)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
