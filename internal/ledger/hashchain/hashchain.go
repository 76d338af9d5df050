// Package hashchain provides the cryptographic primitive linking ledger
// events. Each event hash covers the previous event's hash plus the event's
// canonical serialization, so any retroactive edit breaks the chain.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Genesis is the well-known hash_prev of the first ledger event.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// Compute returns the hex-encoded SHA-256 digest of hashPrev concatenated
// with the canonical content bytes. It is a pure function: same inputs,
// same output, no side effects.
func Compute(hashPrev string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(hashPrev))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// IsWellFormed reports whether s looks like a hex-encoded SHA-256 digest.
// It does not prove chain membership, only shape.
func IsWellFormed(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
