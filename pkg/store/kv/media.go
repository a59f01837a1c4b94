package kv

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/media"
)

// InsertMedia writes the media record and its hash index entry in one
// transaction. An existing hash entry is overwritten.
func (s *Store) InsertMedia(m *media.Media) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, keyMedia(m.ID), m); err != nil {
			return err
		}
		return txn.Set(keyHash(m.ContentHash), []byte(m.ID.String()))
	})
	return apperr.Wrap(apperr.KindDatabase, "inserting media", err)
}

// InsertMediaUnlessHashExists inserts the pair only if no media is indexed
// under m.ContentHash yet. When the hash is already taken it returns the
// existing record and inserted=false, all within one transaction, so two
// racing identical uploads cannot both insert.
func (s *Store) InsertMediaUnlessHashExists(m *media.Media) (existing *media.Media, inserted bool, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHash(m.ContentHash))
		if err == nil {
			var idStr string
			if err := item.Value(func(val []byte) error {
				idStr = string(val)
				return nil
			}); err != nil {
				return err
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				return err
			}
			var found media.Media
			if err := getJSON(txn, keyMedia(id), &found); err != nil {
				// Dangling hash pointer; reclaim it.
				if err != badger.ErrKeyNotFound {
					return err
				}
			} else {
				existing = &found
				return nil
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := setJSON(txn, keyMedia(m.ID), m); err != nil {
			return err
		}
		if err := txn.Set(keyHash(m.ContentHash), []byte(m.ID.String())); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindDatabase, "conditional media insert", err)
	}
	return existing, inserted, nil
}

// GetMedia fetches a media record by id.
func (s *Store) GetMedia(id uuid.UUID) (*media.Media, error) {
	var m media.Media
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyMedia(id), &m)
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperr.Ef(apperr.KindNotFound, "media not found: %s", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "getting media", err)
	}
	return &m, nil
}

// FindByHash resolves a content hash to its media record via the index.
// Returns (nil, nil) on a miss.
func (s *Store) FindByHash(hash string) (*media.Media, error) {
	var m *media.Media
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHash(hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var idStr string
		if err := item.Value(func(val []byte) error {
			idStr = string(val)
			return nil
		}); err != nil {
			return err
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return err
		}

		var found media.Media
		if err := getJSON(txn, keyMedia(id), &found); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // dangling pointer, treat as miss
			}
			return err
		}
		m = &found
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "looking up media by hash", err)
	}
	return m, nil
}

// DeleteMedia removes the record and its hash index entry atomically.
func (s *Store) DeleteMedia(id uuid.UUID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var m media.Media
		if err := getJSON(txn, keyMedia(id), &m); err != nil {
			return err
		}
		if err := txn.Delete(keyMedia(id)); err != nil {
			return err
		}
		return txn.Delete(keyHash(m.ContentHash))
	})
	if err == badger.ErrKeyNotFound {
		return apperr.Ef(apperr.KindNotFound, "media not found: %s", id)
	}
	return apperr.Wrap(apperr.KindDatabase, "deleting media", err)
}

// UpdateLastAccessed bumps last_accessed_at. Called fire-and-forget after
// serving, so failures are the caller's to ignore.
func (s *Store) UpdateLastAccessed(id uuid.UUID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var m media.Media
		if err := getJSON(txn, keyMedia(id), &m); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.LastAccessedAt = &now
		return setJSON(txn, keyMedia(id), &m)
	})
	if err == badger.ErrKeyNotFound {
		return apperr.Ef(apperr.KindNotFound, "media not found: %s", id)
	}
	return apperr.Wrap(apperr.KindDatabase, "updating last accessed", err)
}

// GetMediaCount iterates the media keyspace. O(N), only used by the stats
// endpoints.
func (s *Store) GetMediaCount() (uint64, error) {
	var count uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("m:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDatabase, "counting media", err)
	}
	return count, nil
}
