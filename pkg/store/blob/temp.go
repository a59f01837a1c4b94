package blob

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
)

// tempUploadName is the single append-only file inside a session dir.
const tempUploadName = "upload"

func (s *Store) tempDir(sid uuid.UUID) string {
	return filepath.Join(s.tempRoot, sid.String())
}

func (s *Store) tempFile(sid uuid.UUID) string {
	return filepath.Join(s.tempDir(sid), tempUploadName)
}

// CreateTempSessionDir makes the per-session temp directory.
func (s *Store) CreateTempSessionDir(sid uuid.UUID) error {
	if err := os.MkdirAll(s.tempDir(sid), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, "creating temp session directory", err)
	}
	return nil
}

// AppendTemp appends chunk bytes to the session's upload file and flushes.
func (s *Store) AppendTemp(sid uuid.UUID, data []byte) error {
	f, err := os.OpenFile(s.tempFile(sid), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "opening temp upload file", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return apperr.Wrap(apperr.KindIO, "appending chunk", err)
	}
	if err := f.Sync(); err != nil {
		return apperr.Wrap(apperr.KindIO, "syncing chunk", err)
	}
	return nil
}

// TempSize returns the current size of the session's upload file; zero if
// nothing has been appended yet.
func (s *Store) TempSize(sid uuid.UUID) (uint64, error) {
	info, err := os.Stat(s.tempFile(sid))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "statting temp upload file", err)
	}
	return uint64(info.Size()), nil
}

// ReadTemp returns the full assembled upload for completion.
func (s *Store) ReadTemp(sid uuid.UUID) ([]byte, error) {
	data, err := os.ReadFile(s.tempFile(sid))
	if os.IsNotExist(err) {
		return nil, apperr.Ef(apperr.KindNotFound, "temp upload not found for session %s", sid)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "reading temp upload file", err)
	}
	return data, nil
}

// DeleteTempSession removes the whole session directory.
func (s *Store) DeleteTempSession(sid uuid.UUID) error {
	if err := os.RemoveAll(s.tempDir(sid)); err != nil {
		return apperr.Wrap(apperr.KindIO, "deleting temp session directory", err)
	}
	return nil
}

// CleanupExpiredTemp removes temp session directories whose modification
// time is older than maxAge. Best-effort: per-entry failures are logged
// and skipped. Returns how many directories were removed.
//
// This catches orphans left by crashes that the KV expiry sweep cannot
// see.
func (s *Store) CleanupExpiredTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.tempRoot)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIO, "listing temp directory", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn("statting temp session directory", "name", entry.Name(), "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("removing expired temp session directory", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
