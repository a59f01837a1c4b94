// Package blob is the filesystem payload plane.
//
// Served files live under two sharded trees (originals and optimized);
// in-flight chunked uploads live under temp/<session>/upload. The KV layer
// owns all authoritative state; this package only moves opaque bytes.
//
// Layout with directory_levels=2:
//
//	originals/ab/cd/<id>.<ext>
//	optimized/ab/cd/<id>.<ext>
//	temp/<session-id>/upload
//
// Shards are consecutive two-hex-character slices of the id's dashless hex
// form, so uniformly random UUIDs spread evenly across 256^L leaves.
package blob

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
)

// MaxDirectoryLevels bounds the shard depth; a UUID has 32 hex chars so
// even 4 levels consume only the first 8.
const MaxDirectoryLevels = 4

// Store is a sharded filesystem blob store.
type Store struct {
	originalsRoot string
	optimizedRoot string
	tempRoot      string
	levels        int
}

// New creates the three roots if missing and returns the store.
func New(originalsRoot, optimizedRoot, tempRoot string, levels int) (*Store, error) {
	if levels < 0 || levels > MaxDirectoryLevels {
		return nil, apperr.Ef(apperr.KindConfig, "directory levels must be in [0,%d], got %d", MaxDirectoryLevels, levels)
	}
	for _, dir := range []string{originalsRoot, optimizedRoot, tempRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindIO, fmt.Sprintf("creating storage root %s", dir), err)
		}
	}
	return &Store{
		originalsRoot: originalsRoot,
		optimizedRoot: optimizedRoot,
		tempRoot:      tempRoot,
		levels:        levels,
	}, nil
}

// shardDir returns the shard directory for id under root.
func (s *Store) shardDir(root string, id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	parts := make([]string, 0, s.levels+1)
	parts = append(parts, root)
	for i := 0; i < s.levels; i++ {
		parts = append(parts, hex[i*2:i*2+2])
	}
	return filepath.Join(parts...)
}

func (s *Store) path(root string, id uuid.UUID, ext string) string {
	return filepath.Join(s.shardDir(root, id), fmt.Sprintf("%s.%s", id, ext))
}

// OriginalPath returns the deterministic on-disk path for an original.
func (s *Store) OriginalPath(id uuid.UUID, ext string) string {
	return s.path(s.originalsRoot, id, ext)
}

// OptimizedPath returns the deterministic on-disk path for an optimized
// rendition.
func (s *Store) OptimizedPath(id uuid.UUID, ext string) string {
	return s.path(s.optimizedRoot, id, ext)
}

// save writes data to a temp file in the target directory and renames it
// into place, so readers never see partial content.
func (s *Store) save(root string, id uuid.UUID, ext string, data []byte) error {
	dir := s.shardDir(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, "creating shard directory", err)
	}

	final := s.path(root, id, ext)
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "creating temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindIO, "writing blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindIO, "syncing blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindIO, "closing blob", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindIO, "renaming blob into place", err)
	}
	return nil
}

// SaveOriginal stores the original bytes for id.
func (s *Store) SaveOriginal(id uuid.UUID, ext string, data []byte) error {
	return s.save(s.originalsRoot, id, ext, data)
}

// SaveOptimized stores the optimized bytes for id.
func (s *Store) SaveOptimized(id uuid.UUID, ext string, data []byte) error {
	return s.save(s.optimizedRoot, id, ext, data)
}

func (s *Store) read(root string, id uuid.UUID, ext string) ([]byte, error) {
	data, err := os.ReadFile(s.path(root, id, ext))
	if os.IsNotExist(err) {
		return nil, apperr.Ef(apperr.KindNotFound, "blob not found: %s.%s", id, ext)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "reading blob", err)
	}
	return data, nil
}

// ReadOriginal returns the original bytes for id.
func (s *Store) ReadOriginal(id uuid.UUID, ext string) ([]byte, error) {
	return s.read(s.originalsRoot, id, ext)
}

// ReadOptimized returns the optimized bytes for id.
func (s *Store) ReadOptimized(id uuid.UUID, ext string) ([]byte, error) {
	return s.read(s.optimizedRoot, id, ext)
}

// open returns a streaming handle plus the blob size.
func (s *Store) open(root string, id uuid.UUID, ext string) (io.ReadSeekCloser, int64, error) {
	f, err := os.Open(s.path(root, id, ext))
	if os.IsNotExist(err) {
		return nil, 0, apperr.Ef(apperr.KindNotFound, "blob not found: %s.%s", id, ext)
	}
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindIO, "opening blob", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apperr.Wrap(apperr.KindIO, "statting blob", err)
	}
	return f, info.Size(), nil
}

// OpenOriginal opens the original for streaming.
func (s *Store) OpenOriginal(id uuid.UUID, ext string) (io.ReadSeekCloser, int64, error) {
	return s.open(s.originalsRoot, id, ext)
}

// OpenOptimized opens the optimized rendition for streaming.
func (s *Store) OpenOptimized(id uuid.UUID, ext string) (io.ReadSeekCloser, int64, error) {
	return s.open(s.optimizedRoot, id, ext)
}

func (s *Store) delete(root string, id uuid.UUID, ext string) error {
	err := os.Remove(s.path(root, id, ext))
	if os.IsNotExist(err) {
		return nil
	}
	return apperr.Wrap(apperr.KindIO, "deleting blob", err)
}

// DeleteOriginal removes the original; missing files are not an error.
func (s *Store) DeleteOriginal(id uuid.UUID, ext string) error {
	return s.delete(s.originalsRoot, id, ext)
}

// DeleteOptimized removes the optimized rendition; missing files are not
// an error.
func (s *Store) DeleteOptimized(id uuid.UUID, ext string) error {
	return s.delete(s.optimizedRoot, id, ext)
}

// ExistsOptimized reports whether the optimized blob is on disk.
func (s *Store) ExistsOptimized(id uuid.UUID, ext string) bool {
	_, err := os.Stat(s.path(s.optimizedRoot, id, ext))
	return err == nil
}

// Stats walks both served trees summing sizes and counting files.
type Stats struct {
	OriginalsBytes uint64 `json:"originals_bytes"`
	OriginalsFiles uint64 `json:"originals_files"`
	OptimizedBytes uint64 `json:"optimized_bytes"`
	OptimizedFiles uint64 `json:"optimized_files"`
}

// GetStats recursively measures the originals and optimized trees.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats

	measure := func(root string, bytes, files *uint64) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				logger.Warn("statting file during stats walk", "path", path, "error", err)
				return nil
			}
			*bytes += uint64(info.Size())
			*files++
			return nil
		})
	}

	if err := measure(s.originalsRoot, &stats.OriginalsBytes, &stats.OriginalsFiles); err != nil {
		return Stats{}, apperr.Wrap(apperr.KindIO, "walking originals tree", err)
	}
	if err := measure(s.optimizedRoot, &stats.OptimizedBytes, &stats.OptimizedFiles); err != nil {
		return Stats{}, apperr.Wrap(apperr.KindIO, "walking optimized tree", err)
	}
	return stats, nil
}
