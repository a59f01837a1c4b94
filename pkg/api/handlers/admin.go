package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/media"
	"github.com/rexpump/mediad/pkg/rexpump"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
	"github.com/rexpump/mediad/pkg/token"
	"github.com/rexpump/mediad/pkg/upload"
)

// AdminHandler serves the loopback-only admin surface.
type AdminHandler struct {
	engine *upload.Engine
	tokens *rexpump.Service
	kv     *kv.Store
	blobs  *blob.Store
	cfg    *config.Config
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(engine *upload.Engine, tokens *rexpump.Service, kvStore *kv.Store, blobs *blob.Store, cfg *config.Config) *AdminHandler {
	return &AdminHandler{engine: engine, tokens: tokens, kv: kvStore, blobs: blobs, cfg: cfg}
}

// GetMedia handles GET /admin/media/{id}: the full stored record.
func (h *AdminHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := mediaID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	m, err := h.kv.GetMedia(id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, media.MediaInfoResponse{
		Media: m,
		URL:   h.cfg.Server.BaseURL + "/m/" + m.ID.String(),
	})
}

// DeleteMedia handles DELETE /admin/media/{id}.
func (h *AdminHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := mediaID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.engine.DeleteMedia(id); err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id.String()})
}

// AdminStatsResponse extends the public stats with session bookkeeping.
type AdminStatsResponse struct {
	MediaCount uint64     `json:"media_count"`
	Storage    blob.Stats `json:"storage"`
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
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

	WriteJSON(w, http.StatusOK, AdminStatsResponse{MediaCount: count, Storage: stats})
}

// Cleanup handles POST /admin/cleanup: runs one expiry sweep now.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Sweep()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// LockRequest is the body of POST /admin/rexpump/lock/{chain}/{addr}.
type LockRequest struct {
	LockType token.LockType `json:"lock_type"`
	Reason   string         `json:"reason,omitempty"`
}

// Lock handles POST /admin/rexpump/lock/{chain}/{addr}.
func (h *AdminHandler) Lock(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var req LockRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	lock, err := h.tokens.AdminLock(chainID, chi.URLParam(r, "addr"), req.LockType, req.Reason)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, lock)
}

// Unlock handles DELETE /admin/rexpump/lock/{chain}/{addr}.
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.tokens.AdminUnlock(chainID, chi.URLParam(r, "addr")); err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// GetTokenMetadata handles GET /admin/rexpump/metadata/{chain}/{addr}.
func (h *AdminHandler) GetTokenMetadata(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp, err := h.tokens.AdminGet(chainID, chi.URLParam(r, "addr"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// PutTokenMetadata handles PUT /admin/rexpump/metadata/{chain}/{addr}:
// an unsigned multipart upsert with optional remove flags.
func (h *AdminHandler) PutTokenMetadata(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		WriteError(w, r, apperr.Wrap(apperr.KindValidation, "parsing multipart form", err))
		return
	}

	req := rexpump.AdminUpdateRequest{
		RemoveImageLight: formBool(r, "remove_image_light"),
		RemoveImageDark:  formBool(r, "remove_image_dark"),
	}
	req.Metadata, err = formMetadata(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	req.ImageLight, err = formImage(r, "image_light")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	req.ImageDark, err = formImage(r, "image_dark")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	meta, err := h.tokens.AdminUpdate(chainID, chi.URLParam(r, "addr"), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, meta)
}

// DeleteTokenMetadata handles DELETE /admin/rexpump/metadata/{chain}/{addr}.
func (h *AdminHandler) DeleteTokenMetadata(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.tokens.AdminDelete(chainID, chi.URLParam(r, "addr")); err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// mediaID parses the {id} route parameter as a media UUID.
func mediaID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Ef(apperr.KindValidation, "invalid media id %q", raw)
	}
	return id, nil
}
