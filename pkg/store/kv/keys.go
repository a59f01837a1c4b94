package kv

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// expiryTimeFormat is RFC3339 pinned to UTC with second precision.
// Fixed width keeps lexicographic order equal to chronological order.
const expiryTimeFormat = "2006-01-02T15:04:05Z"

func keyMedia(id uuid.UUID) []byte {
	return []byte("m:" + id.String())
}

func keyHash(hash string) []byte {
	return []byte("h:" + hash)
}

func keySession(id uuid.UUID) []byte {
	return []byte("s:" + id.String())
}

func keySessionExpiry(expiresAt time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("se:%s:%s", expiresAt.UTC().Format(expiryTimeFormat), id))
}

func keyTokenMeta(key string) []byte {
	return []byte("tm:" + key)
}

func keyTokenLock(key string) []byte {
	return []byte("tl:" + key)
}

func keyTokenUpdate(key string) []byte {
	return []byte("tu:" + key)
}
