// Package cache provides the best-effort response cache: a mapping
// from a deterministic exchange fingerprint to a previously generated
// reply. Loss of an entry never blocks generation, it only removes the
// fast path.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/virtualcompanion/companion-sdk/core"
)

// Cache is the response cache consumed by the generator. Both
// operations are best-effort: Get may miss spuriously and Set may be
// dropped without the caller noticing.
type Cache interface {
	// Get returns the cached reply for the fingerprint, if present.
	Get(ctx context.Context, fingerprint string) (string, bool)

	// Set caches a reply under the fingerprint with the backend's TTL.
	Set(ctx context.Context, fingerprint, reply string)
}

// Fingerprint derives the deterministic cache key for an exchange:
// the character, the hash of the new message, and the hash of the
// recent-context window. Identical context within the TTL yields the
// same key, which is what makes cache hits meaningful.
func Fingerprint(characterID, message string, window []core.Message) string {
	return fmt.Sprintf("ai:response:%s:%x:%x", characterID, hash(message), hashWindow(window))
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func hashWindow(window []core.Message) uint64 {
	h := fnv.New64a()
	for _, msg := range window {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
