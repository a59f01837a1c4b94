package kv

import (
	"bytes"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/media"
)

// InsertSession writes the session and its expiry index entry atomically.
func (s *Store) InsertSession(sess *media.UploadSession) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, keySession(sess.ID), sess); err != nil {
			return err
		}
		return txn.Set(keySessionExpiry(sess.ExpiresAt, sess.ID), []byte(sess.ID.String()))
	})
	return apperr.Wrap(apperr.KindDatabase, "inserting upload session", err)
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id uuid.UUID) (*media.UploadSession, error) {
	var sess media.UploadSession
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keySession(id), &sess)
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperr.Ef(apperr.KindNotFound, "upload session not found: %s", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "getting upload session", err)
	}
	return &sess, nil
}

// UpdateSession persists a mutated session. If expires_at changed the old
// expiry index entry is replaced in the same transaction.
func (s *Store) UpdateSession(sess *media.UploadSession) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var old media.UploadSession
		if err := getJSON(txn, keySession(sess.ID), &old); err != nil {
			return err
		}

		if !old.ExpiresAt.Equal(sess.ExpiresAt) {
			if err := txn.Delete(keySessionExpiry(old.ExpiresAt, old.ID)); err != nil {
				return err
			}
			if err := txn.Set(keySessionExpiry(sess.ExpiresAt, sess.ID), []byte(sess.ID.String())); err != nil {
				return err
			}
		}

		return setJSON(txn, keySession(sess.ID), sess)
	})
	if err == badger.ErrKeyNotFound {
		return apperr.Ef(apperr.KindNotFound, "upload session not found: %s", sess.ID)
	}
	return apperr.Wrap(apperr.KindDatabase, "updating upload session", err)
}

// DeleteSession removes the session and its expiry index entry atomically.
func (s *Store) DeleteSession(id uuid.UUID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var sess media.UploadSession
		if err := getJSON(txn, keySession(id), &sess); err != nil {
			return err
		}
		if err := txn.Delete(keySession(id)); err != nil {
			return err
		}
		return txn.Delete(keySessionExpiry(sess.ExpiresAt, sess.ID))
	})
	if err == badger.ErrKeyNotFound {
		return apperr.Ef(apperr.KindNotFound, "upload session not found: %s", id)
	}
	return apperr.Wrap(apperr.KindDatabase, "deleting upload session", err)
}

// CleanupExpiredSessions scans the expiry index forward up to now and
// removes every still-in_progress session it finds, marking nothing:
// the session and both keys are deleted outright. Returns the ids of the
// removed sessions so callers can clean their temp directories.
//
// The index is keyed by fixed-width UTC timestamps, so a single forward
// scan that stops at the first future key visits exactly the expired set.
func (s *Store) CleanupExpiredSessions() ([]uuid.UUID, error) {
	cutoff := []byte("se:" + time.Now().UTC().Format(expiryTimeFormat))
	prefix := []byte("se:")

	var removed []uuid.UUID
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		type victim struct {
			expKey []byte
			id     uuid.UUID
		}
		var victims []victim

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			// Keys sort chronologically; stop at the first unexpired one.
			if bytes.Compare(key[:len(cutoff)], cutoff) > 0 {
				break
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
				logger.Warn("malformed session expiry entry", "key", string(key))
				victims = append(victims, victim{expKey: key})
				continue
			}
			victims = append(victims, victim{expKey: key, id: id})
		}

		for _, v := range victims {
			if err := txn.Delete(v.expKey); err != nil {
				return err
			}
			if v.id == uuid.Nil {
				continue
			}

			var sess media.UploadSession
			err := getJSON(txn, keySession(v.id), &sess)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			// Terminal and processing sessions keep their record; only
			// abandoned in-progress ones are reaped. Their stale index
			// entry is gone either way.
			if sess.Status != media.SessionInProgress {
				continue
			}
			if err := txn.Delete(keySession(v.id)); err != nil {
				return err
			}
			removed = append(removed, v.id)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "cleaning up expired sessions", err)
	}
	return removed, nil
}
