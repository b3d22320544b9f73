package api

import (
	"encoding/json"
	"net/http"

	"github.com/ernie/minebridge/internal/verify"
)

// StatusResponse summarizes the bridge for operators
type StatusResponse struct {
	NotificationsActive bool `json:"notifications_active"`
	LogSourceConnected  bool `json:"log_source_connected"`
	OpenSessions        int  `json:"open_sessions"`
	VerifiedMembers     int  `json:"verified_members"`
	FeedClients         int  `json:"feed_clients"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleStatus returns the current bridge state
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	status := StatusResponse{
		NotificationsActive: r.deps.Bridge.Active(),
		OpenSessions:        len(r.deps.Sessions.Sessions()),
		VerifiedMembers:     r.deps.Mappings.Len(),
		FeedClients:         r.wsHub.ClientCount(),
	}
	if r.deps.Logs != nil {
		status.LogSourceConnected = r.deps.Logs.Connected()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSessions lists open verification sessions
func (r *Router) handleSessions(w http.ResponseWriter, req *http.Request) {
	sessions := r.deps.Sessions.Sessions()
	if sessions == nil {
		sessions = []verify.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleMapping returns the stored verification for one member
func (r *Router) handleMapping(w http.ResponseWriter, req *http.Request) {
	memberID := req.PathValue("memberID")
	record, ok := r.deps.Mappings.Lookup(memberID)
	if !ok {
		writeError(w, http.StatusNotFound, "mapping not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleHealth returns health status
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
