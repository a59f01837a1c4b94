package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/metrics"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
)

// ServeHandler streams stored blobs back to clients.
type ServeHandler struct {
	kv    *kv.Store
	blobs *blob.Store
	cfg   *config.Config
}

// NewServeHandler creates a blob-serving handler.
func NewServeHandler(kvStore *kv.Store, blobs *blob.Store, cfg *config.Config) *ServeHandler {
	return &ServeHandler{kv: kvStore, blobs: blobs, cfg: cfg}
}

// Optimized handles GET /m/{id}.
func (h *ServeHandler) Optimized(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "optimized")
}

// Original handles GET /m/{id}/original. 404 unless originals are kept.
func (h *ServeHandler) Original(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Processing.KeepOriginals {
		metrics.ServeRequests.WithLabelValues("original", "not_found").Inc()
		WriteError(w, r, apperr.E(apperr.KindNotFound, "originals are not kept"))
		return
	}
	h.serve(w, r, "original")
}

func (h *ServeHandler) serve(w http.ResponseWriter, r *http.Request, variant string) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		metrics.ServeRequests.WithLabelValues(variant, "not_found").Inc()
		WriteError(w, r, apperr.Ef(apperr.KindNotFound, "media %q not found", raw))
		return
	}

	m, err := h.kv.GetMedia(id)
	if err != nil {
		metrics.ServeRequests.WithLabelValues(variant, "not_found").Inc()
		WriteError(w, r, err)
		return
	}

	etag := fmt.Sprintf("%q", m.ContentHash)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control",
		fmt.Sprintf("public, max-age=%d, immutable", h.cfg.Server.CacheMaxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Header.Get("If-None-Match") == etag {
		metrics.ServeRequests.WithLabelValues(variant, "not_modified").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	var (
		reader   io.ReadSeekCloser
		size     int64
		mimeType string
	)
	if variant == "original" {
		reader, size, err = h.blobs.OpenOriginal(id, m.OriginalExtension())
		mimeType = m.OriginalMimeType
	} else {
		reader, size, err = h.blobs.OpenOptimized(id, m.OptimizedExtension())
		mimeType = m.OptimizedMimeType
	}
	if err != nil {
		metrics.ServeRequests.WithLabelValues(variant, "not_found").Inc()
		WriteError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	if variant == "original" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("inline; filename=%q", sanitizeFilename(m.OriginalFilename)))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		logger.Debug("streaming media body", "id", id, "error", err)
	}

	metrics.ServeRequests.WithLabelValues(variant, "ok").Inc()

	// Best-effort access-time bump; never delays the response.
	go func(id uuid.UUID) {
		if err := h.kv.UpdateLastAccessed(id); err != nil {
			logger.Debug("updating last accessed time", "id", id, "error", err)
		}
	}(id)
}

// sanitizeFilename keeps only [A-Za-z0-9._-] so the name is header-safe.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
