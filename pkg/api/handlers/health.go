package handlers

import (
	"net/http"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
)

// HealthHandler serves the liveness, readiness and stats probes.
type HealthHandler struct {
	kv      *kv.Store
	blobs   *blob.Store
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(kvStore *kv.Store, blobs *blob.Store, version string) *HealthHandler {
	return &HealthHandler{kv: kvStore, blobs: blobs, version: version}
}

// Liveness handles GET /health/live. Succeeds whenever the process is
// serving requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "mediad",
		"version": h.version,
	})
}

// Readiness handles GET /health/ready. Probes the KV store.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.kv.HealthCheck(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  apperr.WireMessage(err),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatsResponse summarizes stored media and disk usage.
type StatsResponse struct {
	MediaCount     uint64 `json:"media_count"`
	OriginalsBytes uint64 `json:"originals_bytes"`
	OptimizedBytes uint64 `json:"optimized_bytes"`
	OriginalsFiles uint64 `json:"originals_files"`
	OptimizedFiles uint64 `json:"optimized_files"`
}

// Stats handles GET /health/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.kv.GetMediaCount()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	stats, err := h.blobs.GetStats()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, StatsResponse{
		MediaCount:     count,
		OriginalsBytes: stats.OriginalsBytes,
		OptimizedBytes: stats.OptimizedBytes,
		OriginalsFiles: stats.OriginalsFiles,
		OptimizedFiles: stats.OptimizedFiles,
	})
}
