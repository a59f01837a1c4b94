package media

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a resumable upload.
//
// Only in_progress accepts chunks. completed, failed, expired and
// cancelled are terminal.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionExpired    SessionStatus = "expired"
	SessionCancelled  SessionStatus = "cancelled"
)

// CanAcceptChunks reports whether a chunk append is allowed in this state.
func (s SessionStatus) CanAcceptChunks() bool {
	return s == SessionInProgress
}

// Terminal reports whether the state admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionExpired, SessionCancelled:
		return true
	}
	return false
}

// UploadSession tracks one resumable upload keyed by its own UUID.
type UploadSession struct {
	ID            uuid.UUID     `json:"id"`
	Filename      string        `json:"filename"`
	MimeType      string        `json:"mime_type"`
	TotalSize     uint64        `json:"total_size"`
	ReceivedBytes uint64        `json:"received_bytes"`
	ChunkSize     uint64        `json:"chunk_size"`
	Status        SessionStatus `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	MediaID       *uuid.UUID    `json:"media_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// NewSession creates an in_progress session expiring after timeout.
func NewSession(filename, mimeType string, totalSize, chunkSize uint64, timeout time.Duration) *UploadSession {
	now := time.Now().UTC()
	return &UploadSession{
		ID:            uuid.New(),
		Filename:      filename,
		MimeType:      mimeType,
		TotalSize:     totalSize,
		ChunkSize:     chunkSize,
		Status:        SessionInProgress,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(timeout),
	}
}

// IsExpired reports whether the session deadline has passed.
func (s *UploadSession) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// IsComplete reports whether every expected byte has arrived.
func (s *UploadSession) IsComplete() bool {
	return s.ReceivedBytes >= s.TotalSize
}

// AddReceivedBytes records a successful chunk append.
func (s *UploadSession) AddReceivedBytes(n uint64) {
	s.ReceivedBytes += n
	s.UpdatedAt = time.Now().UTC()
}

// ProgressPercent returns upload progress in [0,100].
func (s *UploadSession) ProgressPercent() float64 {
	if s.TotalSize == 0 {
		return 0
	}
	return float64(s.ReceivedBytes) / float64(s.TotalSize) * 100
}

// NextOffset is the byte offset the next chunk must start at.
func (s *UploadSession) NextOffset() uint64 {
	return s.ReceivedBytes
}

// MarkProcessing transitions to processing before the pipeline runs.
func (s *UploadSession) MarkProcessing() {
	s.Status = SessionProcessing
	s.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records the resulting media id.
func (s *UploadSession) MarkCompleted(mediaID uuid.UUID) {
	s.Status = SessionCompleted
	s.MediaID = &mediaID
	s.UpdatedAt = time.Now().UTC()
}

// MarkFailed records the pipeline error.
func (s *UploadSession) MarkFailed(msg string) {
	s.Status = SessionFailed
	s.ErrorMessage = msg
	s.UpdatedAt = time.Now().UTC()
}

// MarkExpired transitions to expired.
func (s *UploadSession) MarkExpired() {
	s.Status = SessionExpired
	s.UpdatedAt = time.Now().UTC()
}

// MarkCancelled transitions to cancelled.
func (s *UploadSession) MarkCancelled() {
	s.Status = SessionCancelled
	s.UpdatedAt = time.Now().UTC()
}
