package web

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"airwatch/internal/automation"
	"airwatch/internal/store"
	"airwatch/internal/tracker"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithHistory exposes recorded sightings under /api/devices/{address}/history.
func WithHistory(h store.Store) ServerOption {
	return func(s *Server) {
		s.history = h
	}
}

// WithStats sets the source of tracker counters for /api/status.
func WithStats(fn func() tracker.Stats) ServerOption {
	return func(s *Server) {
		s.stats = fn
	}
}

// WithAutomation exposes the rule scripts and their engine.
func WithAutomation(engine *automation.Engine, library *automation.Library) ServerOption {
	return func(s *Server) {
		s.engine = engine
		s.library = library
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server for the JSON API and live feed.
type Server struct {
	view           *tracker.View
	feed           *feed
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	history        store.Store
	stats          func() tracker.Stats
	library        *automation.Library
	engine         *automation.Engine
	version        string
	unsubEvents    func()
}

// NewServer creates a new web server.
func NewServer(view *tracker.View, events *tracker.EventBus, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		view:   view,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.feed = newFeed(view)
	s.unsubEvents = events.OnAll(s.feed.publish)

	s.routes()
	return s
}

// Stop unsubscribes from events and disconnects live feed clients.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.feed.close()
}

func (s *Server) routes() {
	// REST API
	s.mux.HandleFunc("GET /api/devices", s.handleAPIListDevices)
	s.mux.HandleFunc("GET /api/devices/{address}", s.handleAPIGetDevice)
	s.mux.HandleFunc("GET /api/devices/{address}/history", s.handleAPIDeviceHistory)
	s.mux.HandleFunc("GET /api/history", s.handleAPIHistoryAddresses)
	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("POST /api/automations/dry-run", s.handleAPIDryRunSource)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/reload", s.handleAPIReloadAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/dry-run", s.handleAPIDryRunAutomation)

	// Live feed
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	// The WebSocket upgrade cannot carry custom headers from a browser, so
	// only /api/ is key-protected.
	if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
