// Package media defines the persisted records and wire DTOs for uploaded
// media and resumable upload sessions.
package media

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type distinguishes the broad media class, derived from the MIME prefix.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// TypeFromMime derives the media type from a MIME string.
// Anything that is not video/* counts as image.
func TypeFromMime(mime string) Type {
	if strings.HasPrefix(mime, "video/") {
		return TypeVideo
	}
	return TypeImage
}

// Media is the persisted record for one stored asset.
type Media struct {
	ID                uuid.UUID  `json:"id"`
	OriginalFilename  string     `json:"original_filename"`
	OriginalMimeType  string     `json:"original_mime_type"`
	OptimizedMimeType string     `json:"optimized_mime_type"`
	MediaType         Type       `json:"media_type"`
	OriginalSize      uint64     `json:"original_size"`
	OptimizedSize     uint64     `json:"optimized_size"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	ContentHash       string     `json:"content_hash"`
	CreatedAt         time.Time  `json:"created_at"`
	LastAccessedAt    *time.Time `json:"last_accessed_at,omitempty"`
}

// New builds a Media record with a fresh v4 id.
func New(filename, originalMime, optimizedMime string, originalSize, optimizedSize uint64, width, height int, contentHash string) *Media {
	return &Media{
		ID:                uuid.New(),
		OriginalFilename:  filename,
		OriginalMimeType:  originalMime,
		OptimizedMimeType: optimizedMime,
		MediaType:         TypeFromMime(originalMime),
		OriginalSize:      originalSize,
		OptimizedSize:     optimizedSize,
		Width:             width,
		Height:            height,
		ContentHash:       contentHash,
		CreatedAt:         time.Now().UTC(),
	}
}

// ExtensionForMime maps a MIME type to the extension used on disk.
func ExtensionForMime(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	default:
		return "bin"
	}
}

// OriginalExtension returns the on-disk extension for the original blob.
func (m *Media) OriginalExtension() string {
	return ExtensionForMime(m.OriginalMimeType)
}

// OptimizedExtension returns the on-disk extension for the optimized blob.
func (m *Media) OptimizedExtension() string {
	return ExtensionForMime(m.OptimizedMimeType)
}
