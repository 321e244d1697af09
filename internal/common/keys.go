package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest hashes parts joined by "|" into a fixed-length hex key. Callers use
// it to bound the size of cache, task and idempotency keys built from
// caller-controlled input.
func Digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
