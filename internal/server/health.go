package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portal-sync/internal/sync"
)

// StatusSource is the engine surface the health endpoints read.
type StatusSource interface {
	GetSyncStatus(ctx context.Context) (sync.StatusReport, error)
}

// HealthHandler serves /health/live, /health/sync and /metrics.
type HealthHandler struct {
	source      StatusSource
	now         func() time.Time
	promHandler http.Handler
}

func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{
		source:      source,
		now:         time.Now,
		promHandler: promhttp.Handler(),
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type syncResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Ready     bool               `json:"ready"`
	Message   string             `json:"message,omitempty"`
	Sync      *sync.StatusReport `json:"sync,omitempty"`
}

// HealthLive answers 200 while the process is up.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Service:   "portal-sync",
	})
}

// HealthSync reports GetSyncStatus. It answers 503 until some pass has
// succeeded, or when the store cannot be read. A failed pass after that is
// reported as degraded with 200.
func (h *HealthHandler) HealthSync(w http.ResponseWriter, r *http.Request) {
	resp := syncResponse{Timestamp: h.now().UTC().Format(time.RFC3339)}

	status, err := h.source.GetSyncStatus(r.Context())
	if err != nil {
		resp.Status = "fail"
		resp.Message = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Sync = &status
	resp.Ready = status.State.Ready()
	resp.Status = syncHealth(status.State)
	resp.Message = status.State.LastError

	code := http.StatusOK
	if resp.Status == "fail" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// syncHealth maps the pass state onto ok, degraded or fail.
func syncHealth(s sync.SyncState) string {
	if !s.Ready() {
		return "fail"
	}
	if s.Status == sync.PhaseFailed {
		return "degraded"
	}
	return "ok"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
