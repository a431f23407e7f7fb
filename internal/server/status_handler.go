package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
	"github.com/stayawake/stay-awake/internal/keepawake"
)

// AutoQuitStatus describes the countdown of the current run.
type AutoQuitStatus struct {
	// State is IDLE, ARMED, FIRED or CANCELED.
	State string `json:"state"`
	// Mode is "duration", "until" or "none".
	Mode             string     `json:"mode"`
	Input            string     `json:"input,omitempty"`
	ETA              *time.Time `json:"eta,omitempty"`
	ETALabel         string     `json:"eta_label,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Remaining        string     `json:"remaining"`
	CadenceMs        int64      `json:"cadence_ms"`
}

// StatusResponse is returned by GET /api/status and sent as the hello payload.
type StatusResponse struct {
	PID              int                      `json:"pid"`
	Version          string                   `json:"version,omitempty"`
	ListeningAddress string                   `json:"listening_address"`
	ConnectedClients int                      `json:"connected_clients"`
	UptimeSeconds    int64                    `json:"uptime_seconds"`
	RunID            string                   `json:"run_id,omitempty"`
	AutoQuit         *AutoQuitStatus          `json:"auto_quit,omitempty"`
	KeepAwake        *keepawake.Status        `json:"keep_awake,omitempty"`
	Power            *keepawake.PowerSnapshot `json:"power,omitempty"`
}

// QuitResponse is returned by POST /api/quit.
type QuitResponse struct {
	// Canceled is false when no countdown was running.
	Canceled bool `json:"canceled"`
}

func (s *Server) statusResponse() StatusResponse {
	snap := s.snapshot()
	return StatusResponse{
		PID:              os.Getpid(),
		Version:          s.opts.Version,
		ListeningAddress: s.Addr(),
		ConnectedClients: s.ClientCount(),
		UptimeSeconds:    int64(s.Uptime().Seconds()),
		RunID:            snap.RunID,
		AutoQuit:         snap.AutoQuit,
		KeepAwake:        snap.KeepAwake,
		Power:            snap.Power,
	}
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	server *Server
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(s *Server) *StatusHandler {
	return &StatusHandler{server: s}
}

// ServeHTTP handles HTTP GET requests to the status endpoint.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.server.statusResponse())
}

// QuitHandler serves POST /api/quit.
type QuitHandler struct {
	server *Server
}

// NewQuitHandler creates a new QuitHandler.
func NewQuitHandler(s *Server) *QuitHandler {
	return &QuitHandler{server: s}
}

// ServeHTTP cancels the running countdown.
func (h *QuitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	canceled := h.server.quit()
	h.server.log.Info("quit requested", "remote", r.RemoteAddr, "canceled", canceled)
	writeJSON(w, http.StatusOK, QuitResponse{Canceled: canceled})
}

func rateLimitedError() error {
	return hostErrors.New(hostErrors.CodeServerRateLimited, "too many requests, slow down")
}

func rateLimitedCodeAndMessage() (string, string) {
	return hostErrors.ToCodeAndMessage(rateLimitedError())
}

func writeError(w http.ResponseWriter, status int, err error) {
	code, msg := hostErrors.ToCodeAndMessage(err)
	writeJSON(w, status, ErrorPayload{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
