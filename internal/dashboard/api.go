package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultFileLimit  = 100
	keepAliveInterval = 30 * time.Second
)

// Server exposes the Store and Hub over HTTP:
//
//	GET /api/runs              every tracked run
//	GET /api/runs/{id}         one run
//	GET /api/runs/{id}/files   its file events (?limit=N, default 100)
//	GET /api/stats             aggregate statistics
//	GET /api/events            server-sent events
type Server struct {
	store     *Store
	hub       *Hub
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewServer creates a Server.
func NewServer(store *Store, hub *Hub, logger zerolog.Logger) *Server {
	return &Server{store: store, hub: hub, logger: logger, keepAlive: keepAliveInterval}
}

// Handler returns the routes, meant to be mounted under /api/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs/{id}/files", s.handleFiles)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/events", s.handleSSE)
	return corsMiddleware(s.loggingMiddleware(mux))
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, s.store.ListRuns())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.GetRun(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, run)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.GetRun(id); !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	limit := defaultFileLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	files := s.store.Files(id, limit)
	if files == nil {
		files = []FileEvent{}
	}
	s.respondJSON(w, files)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, s.store.Stats())
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	client, err := NewClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.hub.Register(client)
	defer s.hub.Unregister(client)
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream opened")

	data, _ := json.Marshal(&Event{Type: EventConnected, Timestamp: time.Now()})
	client.send(data)

	go client.KeepAlive(s.keepAlive)

	<-r.Context().Done()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream closed")
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

// corsMiddleware allows browser clients on other origins to read the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
