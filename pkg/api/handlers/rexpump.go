package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/rexpump"
	"github.com/rexpump/mediad/pkg/token"
)

// multipartMemory caps how much of a multipart body is held in memory
// before spilling to disk.
const multipartMemory = 32 << 20

// RexPumpHandler serves the public token-metadata surface.
type RexPumpHandler struct {
	svc *rexpump.Service
}

// NewRexPumpHandler creates the public token-metadata handler.
func NewRexPumpHandler(svc *rexpump.Service) *RexPumpHandler {
	return &RexPumpHandler{svc: svc}
}

// SignedUpdate handles POST /api/rexpump/metadata: a multipart form with
// the signed-update fields plus optional metadata JSON and image files.
func (h *RexPumpHandler) SignedUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		WriteError(w, r, apperr.Wrap(apperr.KindValidation, "parsing multipart form", err))
		return
	}

	chainID, err := formUint(r, "chain_id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	timestamp, err := formInt(r, "timestamp")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	req := rexpump.SignedUpdateRequest{
		ChainID:      chainID,
		TokenAddress: r.FormValue("token_address"),
		TokenOwner:   r.FormValue("token_owner"),
		Timestamp:    timestamp,
		Signature:    r.FormValue("signature"),
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

	meta, err := h.svc.SignedUpdate(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, meta)
}

// PublicGet handles GET /api/rexpump/metadata/{chain}/{addr}.
func (h *RexPumpHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp, err := h.svc.PublicGet(chainID, chi.URLParam(r, "addr"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// chainParam parses the {chain} route parameter.
func chainParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "chain")
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Ef(apperr.KindValidation, "invalid chain id %q", raw)
	}
	return chainID, nil
}

// formUint parses a required unsigned integer form field.
func formUint(r *http.Request, field string) (uint64, error) {
	v, err := strconv.ParseUint(r.FormValue(field), 10, 64)
	if err != nil {
		return 0, apperr.Ef(apperr.KindValidation, "invalid or missing field %q", field)
	}
	return v, nil
}

// formInt parses a required signed integer form field.
func formInt(r *http.Request, field string) (int64, error) {
	v, err := strconv.ParseInt(r.FormValue(field), 10, 64)
	if err != nil {
		return 0, apperr.Ef(apperr.KindValidation, "invalid or missing field %q", field)
	}
	return v, nil
}

// formBool reads an optional boolean flag field ("true" or "1").
func formBool(r *http.Request, field string) bool {
	v := r.FormValue(field)
	return v == "true" || v == "1"
}

// formMetadata decodes the optional "metadata" JSON field.
func formMetadata(r *http.Request) (*token.MetadataInput, error) {
	raw := r.FormValue("metadata")
	if raw == "" {
		return nil, nil
	}
	var input token.MetadataInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "decoding metadata JSON", err)
	}
	return &input, nil
}

// formImage reads an optional image file field into memory.
func formImage(r *http.Request, field string) (*rexpump.ImageUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindValidation, "reading multipart field "+strconv.Quote(field), err)
	}
	defer file.Close()

	data, err := readAll(file)
	if err != nil {
		return nil, err
	}
	return &rexpump.ImageUpload{Filename: header.Filename, Data: data}, nil
}

func readAll(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "reading uploaded file", err)
	}
	return data, nil
}
