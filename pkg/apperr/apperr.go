// Package apperr defines the error taxonomy shared by every service layer.
//
// Each error carries a Kind that maps to an HTTP status code and a stable
// wire identifier. Handlers serialize errors as:
//
//	{"error": "<kind>", "message": "<detail>", "status": <code>}
//
// Server-side kinds (5xx) have their wire message redacted; the full detail
// is only logged.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and logging.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindUploadSession        Kind = "upload_session_error"
	KindUnauthorized         Kind = "unauthorized"
	KindNotAuthorized        Kind = "not_authorized"
	KindTokenLocked          Kind = "token_locked"
	KindUpdateCooldown       Kind = "update_cooldown"
	KindInvalidSignature     Kind = "invalid_signature"
	KindInternal             Kind = "internal"
	KindIO                   Kind = "io"
	KindDatabase             Kind = "database"
	KindImageProcessing      Kind = "image_processing"
	KindConfig               Kind = "config"
)

// RedactedMessage is the wire message substituted for all 5xx errors.
const RedactedMessage = "An internal error occurred. Please try again later."

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error from a message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Ef builds a classified error with printf formatting.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
// A nil cause yields nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind of err, unwrapping as needed.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindUploadSession, KindInvalidSignature:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotAuthorized, KindTokenLocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindRateLimitExceeded, KindUpdateCooldown:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ServerSide reports whether the kind maps to a 5xx status.
func (k Kind) ServerSide() bool {
	return k.Status() >= 500
}

// WireMessage returns the message safe to send to clients: client-side
// errors keep their detail, server-side errors are redacted.
func WireMessage(err error) string {
	kind := KindOf(err)
	if kind.ServerSide() {
		return RedactedMessage
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
