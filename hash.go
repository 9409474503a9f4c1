package skua

import (
	"encoding/hex"
	"hash/fnv"

	"github.com/google/uuid"
)

// digest identifies a payload by content.
func digest(b []byte) string {
	h := fnv.New128a()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// rowHash identifies one queue row. The nonce keeps two equal payloads
// from sharing a hash, so removing one never removes the other.
func rowHash(b []byte) string {
	return digest(b)[:16] + "-" + uuid.NewString()
}
