package sim

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// NewID generates a fresh, uniformly-distributed 64-bit agent id: a
// random UUID folded through a 64-bit hash, rather than reading raw
// bytes from crypto/rand directly, since the shard hasher
// (internal/shardhash) assumes ids already look hash-derived, not
// sequential or clustered.
func NewID() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(uuid.NewString()))
	return h.Sum64()
}
