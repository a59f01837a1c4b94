package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/media"
	"github.com/rexpump/mediad/pkg/upload"
)

// UploadHandler serves the simple and chunked upload endpoints.
type UploadHandler struct {
	engine *upload.Engine
	cfg    *config.Config
}

// NewUploadHandler creates an upload handler over the engine.
func NewUploadHandler(engine *upload.Engine, cfg *config.Config) *UploadHandler {
	return &UploadHandler{engine: engine, cfg: cfg}
}

// Simple handles POST /api/upload: a one-shot multipart upload with the
// file under the "file" field.
func (h *UploadHandler) Simple(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r, apperr.Wrap(apperr.KindValidation, "reading multipart field \"file\"", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, r, apperr.Wrap(apperr.KindIO, "reading upload body", err))
		return
	}

	m, err := h.engine.IngestSimple(header.Filename, data)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated,
		media.NewUploadResponse(m, h.cfg.Server.BaseURL, h.cfg.Processing.KeepOriginals))
}

// Init handles POST /api/upload/init: starts a resumable session.
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req media.InitUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	sess, err := h.engine.InitSession(req)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, media.NewSessionResponse(sess, h.cfg.Server.BaseURL))
}

// Chunk handles PATCH /api/upload/{id}/chunk: raw body bytes plus an
// optional Content-Range header. Without the header the bytes are
// appended at the current offset.
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	start, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, r, apperr.Wrap(apperr.KindIO, "reading chunk body", err))
		return
	}

	sess, err := h.engine.AppendChunk(sid, body, start)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, media.NewSessionResponse(sess, h.cfg.Server.BaseURL))
}

// Complete handles POST /api/upload/{id}/complete.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	_, m, err := h.engine.Complete(sid)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK,
		media.NewUploadResponse(m, h.cfg.Server.BaseURL, h.cfg.Processing.KeepOriginals))
}

// Status handles GET /api/upload/{id}/status.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	sess, err := h.engine.Status(sid)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, media.NewSessionResponse(sess, h.cfg.Server.BaseURL))
}

// Cancel handles POST /api/upload/{id}/cancel.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	sess, err := h.engine.Cancel(sid)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, media.NewSessionResponse(sess, h.cfg.Server.BaseURL))
}

// sessionID parses the {id} route parameter as a session UUID.
func sessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	sid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Ef(apperr.KindValidation, "invalid session id %q", raw)
	}
	return sid, nil
}

// parseContentRange extracts the start offset from a
// "bytes <start>-<end>/<total>" header. An empty header yields nil,
// meaning "append at the current offset".
func parseContentRange(header string) (*uint64, error) {
	if header == "" {
		return nil, nil
	}

	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return nil, apperr.Ef(apperr.KindValidation, "malformed Content-Range header %q", header)
	}
	rangePart, _, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, apperr.Ef(apperr.KindValidation, "malformed Content-Range header %q", header)
	}
	startPart, _, ok := strings.Cut(rangePart, "-")
	if !ok {
		return nil, apperr.Ef(apperr.KindValidation, "malformed Content-Range header %q", header)
	}

	start, err := strconv.ParseUint(strings.TrimSpace(startPart), 10, 64)
	if err != nil {
		return nil, apperr.Ef(apperr.KindValidation, "invalid Content-Range start offset %q", startPart)
	}
	return &start, nil
}
