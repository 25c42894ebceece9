package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/virtualcompanion/companion-sdk/core"
)

// Retriever answers per-turn similarity queries: embed the query text,
// rank the pair's records, and record the access.
type Retriever struct {
	store    Store
	embedder Embedder
}

// NewRetriever creates a retriever over the given backends.
func NewRetriever(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Relevant returns the top-limit records for the query text, most
// similar first. An embedding failure surfaces wrapped
// ErrEmbeddingUnavailable so callers can degrade instead of failing.
func (r *Retriever) Relevant(ctx context.Context, userID, characterID, query string, limit int) ([]*Record, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	records, err := r.store.FindSimilar(ctx, userID, characterID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		if err := r.store.Touch(ctx, userID, characterID, ids); err != nil {
			log.Printf("[MEMORY] Failed to record access: %v", err)
		}
	}

	return records, nil
}
