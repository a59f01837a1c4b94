package media

import (
	"fmt"
	"time"
)

// InitUploadRequest is the JSON body of POST /api/upload/init.
type InitUploadRequest struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	TotalSize uint64 `json:"total_size"`
}

// UploadResponse is returned by the simple upload and complete endpoints.
type UploadResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	OriginalURL string `json:"original_url,omitempty"`
	MediaType   Type   `json:"media_type"`
	MimeType    string `json:"mime_type"`
	Size        uint64 `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// NewUploadResponse builds the upload DTO for a stored media record.
// originalURL is only populated when originals are kept on disk.
func NewUploadResponse(m *Media, baseURL string, keepOriginals bool) UploadResponse {
	resp := UploadResponse{
		ID:        m.ID.String(),
		URL:       fmt.Sprintf("%s/m/%s", baseURL, m.ID),
		MediaType: m.MediaType,
		MimeType:  m.OptimizedMimeType,
		Size:      m.OptimizedSize,
		Width:     m.Width,
		Height:    m.Height,
	}
	if keepOriginals {
		resp.OriginalURL = fmt.Sprintf("%s/m/%s/original", baseURL, m.ID)
	}
	return resp
}

// UploadSessionResponse is the session DTO returned by init, chunk, status
// and cancel.
type UploadSessionResponse struct {
	ID            string        `json:"id"`
	Status        SessionStatus `json:"status"`
	ReceivedBytes uint64        `json:"received_bytes"`
	TotalSize     uint64        `json:"total_size"`
	Progress      float64       `json:"progress"`
	ChunkSize     uint64        `json:"chunk_size"`
	NextOffset    uint64        `json:"next_offset"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Error         string        `json:"error,omitempty"`
	MediaID       string        `json:"media_id,omitempty"`
	MediaURL      string        `json:"media_url,omitempty"`
}

// NewSessionResponse builds the session DTO. The media URL is only set for
// completed sessions.
func NewSessionResponse(s *UploadSession, baseURL string) UploadSessionResponse {
	resp := UploadSessionResponse{
		ID:            s.ID.String(),
		Status:        s.Status,
		ReceivedBytes: s.ReceivedBytes,
		TotalSize:     s.TotalSize,
		Progress:      s.ProgressPercent(),
		ChunkSize:     s.ChunkSize,
		NextOffset:    s.NextOffset(),
		ExpiresAt:     s.ExpiresAt,
		Error:         s.ErrorMessage,
	}
	if s.MediaID != nil {
		resp.MediaID = s.MediaID.String()
		if s.Status == SessionCompleted && baseURL != "" {
			resp.MediaURL = fmt.Sprintf("%s/m/%s", baseURL, *s.MediaID)
		}
	}
	return resp
}

// MediaInfoResponse is the full record exposed on the admin surface.
type MediaInfoResponse struct {
	Media *Media `json:"media"`
	URL   string `json:"url"`
}
