// Package handlers implements the HTTP handlers for both the public and
// the admin surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
)

// ErrorBody is the wire shape of every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding response body", "error", err)
	}
}

// WriteError maps err onto the error taxonomy and writes the JSON error
// body. Server-side errors are logged in full but reach the wire with a
// redacted message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()

	if kind.ServerSide() {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", string(kind),
			"error", err,
		)
	} else {
		logger.Debug("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", string(kind),
			"error", err,
		)
	}

	WriteJSON(w, status, ErrorBody{
		Error:   string(kind),
		Message: apperr.WireMessage(err),
		Status:  status,
	})
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "decoding request body", err)
	}
	return nil
}
