package kv

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/token"
)

// GetTokenMetadata fetches the record for "<chain>:<addr>".
// Returns (nil, nil) when absent.
func (s *Store) GetTokenMetadata(key string) (*token.Metadata, error) {
	var m *token.Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		var found token.Metadata
		err := getJSON(txn, keyTokenMeta(key), &found)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		m = &found
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "getting token metadata", err)
	}
	return m, nil
}

// UpsertTokenMetadata writes the record unconditionally.
func (s *Store) UpsertTokenMetadata(key string, m *token.Metadata) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, keyTokenMeta(key), m)
	})
	return apperr.Wrap(apperr.KindDatabase, "upserting token metadata", err)
}

// DeleteTokenMetadata removes the record. Returns true iff one existed.
// The lock and update records have independent lifecycles and are left
// alone.
func (s *Store) DeleteTokenMetadata(key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyTokenMeta(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(keyTokenMeta(key))
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindDatabase, "deleting token metadata", err)
	}
	return existed, nil
}

// GetTokenLock fetches the lock for a key. Returns (nil, nil) when the
// token is unlocked.
func (s *Store) GetTokenLock(key string) (*token.Lock, error) {
	var l *token.Lock
	err := s.db.View(func(txn *badger.Txn) error {
		var found token.Lock
		err := getJSON(txn, keyTokenLock(key), &found)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		l = &found
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "getting token lock", err)
	}
	return l, nil
}

// LockToken inserts (or replaces) the lock for a key.
func (s *Store) LockToken(key string, l *token.Lock) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, keyTokenLock(key), l)
	})
	return apperr.Wrap(apperr.KindDatabase, "locking token", err)
}

// UnlockToken deletes the lock. Returns true iff a lock existed.
func (s *Store) UnlockToken(key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyTokenLock(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(keyTokenLock(key))
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindDatabase, "unlocking token", err)
	}
	return existed, nil
}

// RecordTokenUpdate stamps now as the last update time for cooldowns.
func (s *Store) RecordTokenUpdate(key string) error {
	rec := token.UpdateRecord{LastUpdateAt: time.Now().UTC()}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, keyTokenUpdate(key), &rec)
	})
	return apperr.Wrap(apperr.KindDatabase, "recording token update", err)
}

// CanUpdateToken reports whether the cooldown window has elapsed since the
// last recorded update. A token never updated can always update.
func (s *Store) CanUpdateToken(key string, cooldown time.Duration) (bool, error) {
	remaining, err := s.SecondsUntilUpdate(key, cooldown)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// SecondsUntilUpdate returns how many seconds remain in the cooldown
// window, zero when an update is allowed now.
func (s *Store) SecondsUntilUpdate(key string, cooldown time.Duration) (int64, error) {
	var rec *token.UpdateRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var found token.UpdateRecord
		err := getJSON(txn, keyTokenUpdate(key), &found)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		rec = &found
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDatabase, "reading token update record", err)
	}
	if rec == nil {
		return 0, nil
	}

	elapsed := time.Since(rec.LastUpdateAt)
	if elapsed >= cooldown {
		return 0, nil
	}
	remaining := int64((cooldown - elapsed).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return remaining, nil
}
