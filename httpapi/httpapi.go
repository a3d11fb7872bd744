// Package httpapi implements the spec §6.2 HTTP surface: health, readiness
// and Prometheus metrics on a separate port from the downstream WebSocket
// server. Routed with gorilla/mux, matching the teacher's own adapter
// packages' use of the library for WS upgrade routing, generalised here to
// a plain HTTP mux.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yitech/candlegw/metrics"
	"github.com/yitech/candlegw/sessionmgr"
)

// healthResponse is the spec §6.2 GET /health body.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// readySnapshot is the spec §6.2 GET /ready body: the §4.9 readiness
// snapshot, one entry per UpstreamSession.
type readySnapshot struct {
	Healthy  bool              `json:"healthy"`
	Sessions []sessionReadiness `json:"sessions"`
}

type sessionReadiness struct {
	Exchange        string    `json:"exchange"`
	ContractType    string    `json:"contract_type"`
	State           string    `json:"state"`
	LastMessageTime time.Time `json:"last_message_time"`
	TotalQuotes     uint64    `json:"total_quotes"`
	TotalErrors     uint64    `json:"total_errors"`
	BreakerState    string    `json:"breaker_state"`
	Symbols         []string  `json:"symbols"`
}

// Server serves spec §6.2's health, readiness and metrics routes.
type Server struct {
	manager *sessionmgr.Manager
	metrics *metrics.Registry
}

// New builds a Server over manager's readiness data and reg's metrics.
func New(manager *sessionmgr.Manager, reg *metrics.Registry) *Server {
	return &Server{manager: manager, metrics: reg}
}

// Router returns a gorilla/mux router with /health, /ready and /metrics
// mounted, for cmd/gatewayd to serve on CONNECTOR_WSS_HEALTH_CHECK_PORT.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()

	body := readySnapshot{Healthy: snap.Healthy}
	for _, sess := range snap.Sessions {
		body.Sessions = append(body.Sessions, sessionReadiness{
			Exchange:        sess.Exchange,
			ContractType:    sess.ContractType,
			State:           sess.State.String(),
			LastMessageTime: sess.LastMessageTime,
			TotalQuotes:     sess.TotalQuotes,
			TotalErrors:     sess.TotalErrors,
			BreakerState:    sess.Breaker.State.String(),
			Symbols:         sess.Symbols,
		})
	}

	status := http.StatusServiceUnavailable
	if snap.Healthy {
		status = http.StatusOK
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
