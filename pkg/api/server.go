package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
)

// StatusFunc reports the supervisor-side view of the node for the
// status endpoint.
type StatusFunc func() NodeStatus

// NodeStatus is the payload of GET /status.
type NodeStatus struct {
	Identity    models.HostIdentity  `json:"identity"`
	Hardware    *models.HardwareInfo `json:"hardware"`
	ActiveRunID string               `json:"active_run_id,omitempty"`
	UptimeSec   int64                `json:"uptime_seconds"`
}

// Server exposes the node's operational surface: health, status, task
// states and Prometheus metrics.
type Server struct {
	store  store.Store
	status StatusFunc
	log    *logging.Logger
	srv    *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, st store.Store, status StatusFunc, log *logging.Logger) *Server {
	s := &Server{store: st, status: status, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/status", s.Status).Methods("GET")
	r.HandleFunc("/tasks", s.ListTasks).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Status handles GET /status
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// ListTasks handles GET /tasks, returning the persisted task states.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.List(r.Context(), task.StateKeyPrefix)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	out := make(map[string]string, len(states))
	for key, state := range states {
		out[strings.TrimPrefix(key, task.StateKeyPrefix)] = state
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
