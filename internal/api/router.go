package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ernie/minebridge/internal/auth"
	"github.com/ernie/minebridge/internal/domain"
	"github.com/ernie/minebridge/internal/verify"
)

// SessionLister exposes open verification sessions
type SessionLister interface {
	Sessions() []verify.Session
}

// MappingReader exposes completed verifications
type MappingReader interface {
	Lookup(memberID string) (domain.MappingRecord, bool)
	Len() int
}

// BridgeState reports whether game events are being relayed
type BridgeState interface {
	Active() bool
}

// LogSource reports whether the game server log stream is attached
type LogSource interface {
	Connected() bool
}

// CommandRunner runs remote console commands
type CommandRunner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Deps are the components the admin API reads from
type Deps struct {
	Sessions SessionLister
	Mappings MappingReader
	Bridge   BridgeState
	Logs     LogSource
	Console  CommandRunner
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux   *http.ServeMux
	deps  Deps
	wsHub *WebSocketHub
	auth  *auth.Service
	log   *slog.Logger
}

// NewRouter creates a new HTTP router. authService may be nil, in which
// case the console endpoint refuses every request.
func NewRouter(deps Deps, authService *auth.Service, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")
	r := &Router{
		mux:   http.NewServeMux(),
		deps:  deps,
		wsHub: NewWebSocketHub(logger),
		auth:  authService,
		log:   logger,
	}

	r.mux.HandleFunc("GET /api/status", r.handleStatus)
	r.mux.HandleFunc("GET /api/sessions", r.handleSessions)
	r.mux.HandleFunc("GET /api/mappings/{memberID}", r.handleMapping)

	// Console route (token required)
	r.mux.HandleFunc("POST /api/rcon", r.requireAuth(r.handleRconCommand))

	// WebSocket event feed
	r.mux.HandleFunc("GET /ws/events", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Hub returns the websocket hub so classified events can be fed to it
func (r *Router) Hub() *WebSocketHub {
	return r.wsHub
}

// StartWebSocketHub runs the hub until ctx ends
func (r *Router) StartWebSocketHub(ctx context.Context) {
	go r.wsHub.Run(ctx)
}
