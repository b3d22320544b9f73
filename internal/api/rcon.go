package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RconRequest is the request body for console commands
type RconRequest struct {
	Command string `json:"command"`
}

// RconResponse is the response body for console commands
type RconResponse struct {
	Output string `json:"output"`
}

// handleRconCommand executes a console command on the game server (auth required)
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	var rconReq RconRequest
	if err := json.NewDecoder(req.Body).Decode(&rconReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	command := strings.TrimSpace(rconReq.Command)
	if command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	r.log.Info("console command via api", "subject", claimsFrom(req.Context()).Subject, "command", command)
	output, err := r.deps.Console.Execute(req.Context(), command)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RconResponse{Output: output})
}
