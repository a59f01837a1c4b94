package image

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes the content hash used for deduplication: SHA-256 over the
// raw uploaded bytes, hex-encoded. Stable across restarts by construction.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
