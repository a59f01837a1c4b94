// Package evm verifies token-metadata writers: it rebuilds the canonical
// signed message, recovers the signer from an EIP-191 personal signature,
// and cross-checks authorship on chain through the token contract's
// creator() function.
package evm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rexpump/mediad/pkg/apperr"
)

// normalizeAddr lowercases an address and ensures the 0x prefix.
func normalizeAddr(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(a, "0x") {
		a = "0x" + a
	}
	return a
}

// BuildSignMessage renders the canonical message a creator signs. Any
// deviation (ordering, casing, whitespace) breaks recovery, so the token
// address is normalized before rendering.
func BuildSignMessage(chainID uint64, tokenAddr string, timestamp int64) string {
	return fmt.Sprintf(
		"RexPump Metadata Update\nChain: %d\nToken: %s\nTimestamp: %d",
		chainID, normalizeAddr(tokenAddr), timestamp,
	)
}

// HashPersonalMessage applies the EIP-191 personal-message envelope:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func HashPersonalMessage(msg string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverSigner recovers the lowercase signer address from a 65-byte
// [R || S || V] signature over msg. Wallets emit V as 27/28; go-ethereum
// expects 0/1, so both are accepted.
func RecoverSigner(msg string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", apperr.Ef(apperr.KindInvalidSignature, "signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", apperr.E(apperr.KindInvalidSignature, "invalid recovery id")
	}

	pub, err := crypto.SigToPub(HashPersonalMessage(msg), sig)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidSignature, "recovering signer", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// ParseSignatureHex decodes a 0x-prefixed (or bare) hex signature string.
func ParseSignatureHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidSignature, "decoding signature hex", err)
	}
	return sig, nil
}
