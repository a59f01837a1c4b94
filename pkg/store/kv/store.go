// Package kv is the typed metadata layer over BadgerDB.
//
// It owns every persisted record that is not opaque file bytes: media
// records, the hash→id dedup index, upload sessions with their expiry
// index, token metadata, token locks and token update timestamps.
//
// Key layout (string prefixes, values JSON-encoded):
//
//	m:<media-uuid>          -> media.Media
//	h:<content-hash>        -> media uuid (raw string)
//	s:<session-uuid>        -> media.UploadSession
//	se:<rfc3339>:<uuid>     -> session uuid (expiry index, scanned in order)
//	tm:<chain>:<addr>       -> token.Metadata
//	tl:<chain>:<addr>       -> token.Lock
//	tu:<chain>:<addr>       -> token.UpdateRecord
//
// Every multi-key mutation runs inside one Badger transaction so readers
// never observe a dangling hash pointer or a session without its expiry
// index entry.
package kv

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
)

// Store wraps a Badger database with typed operations.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for a service log

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, fmt.Sprintf("opening kv store at %s", dir), err)
	}

	logger.Info("kv store opened", "dir", dir)
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "closing kv store", err)
	}
	return nil
}

// HealthCheck verifies the store answers a read. Used by the readiness
// probe.
func (s *Store) HealthCheck() error {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("health:probe"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "kv health check", err)
	}
	return nil
}

// getJSON reads key into out, returning badger.ErrKeyNotFound untouched so
// callers can map it to their own not-found error.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals v and writes it under key.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
