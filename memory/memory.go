package memory

import "context"

// Store is the durable memory backend. Implementations: LocalStore
// (in-process, for tests and single-node deployments), ChromemStore
// (embedded vector database). A production deployment would back this
// with pgvector without touching callers.
type Store interface {
	// Save persists a record. The record must have its embedding set.
	Save(ctx context.Context, rec *Record) error

	// FindSimilar returns up to limit records for the user+character
	// pair ranked by similarity to the query vector, best first.
	FindSimilar(ctx context.Context, userID, characterID string, query []float32, limit int) ([]*Record, error)

	// FindByType is FindSimilar restricted to one memory type.
	FindByType(ctx context.Context, userID, characterID string, typ Type, query []float32, limit int) ([]*Record, error)

	// DeleteByConversation removes every record extracted from the
	// given conversation.
	DeleteByConversation(ctx context.Context, conversationID string) error

	// Touch records a retrieval hit: bumps access count and
	// last-accessed time. Best-effort; failures are logged by callers.
	Touch(ctx context.Context, userID, characterID string, ids []string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to a fixed-dimension vector.
// Implementations: mock (deterministic, for tests), onnx (local
// all-MiniLM-L6-v2 model behind the onnx build tag).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// SharedStore holds the character-scoped shared-memory list: the plain
// text memories a character carries across conversations with a user.
// The list is capped; appending beyond the cap evicts the oldest entry
// first, never the most important.
type SharedStore interface {
	// Append adds entries, applying the FIFO cap.
	Append(ctx context.Context, userID, characterID string, entries ...string) error

	// List returns the entries in insertion order, oldest first.
	List(ctx context.Context, userID, characterID string) ([]string, error)
}

// SharedCap is the maximum size of a character-scoped shared-memory
// list. Insertion beyond the cap evicts oldest-first.
const SharedCap = 100
