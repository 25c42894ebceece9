package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/virtualcompanion/companion-sdk/core"
)

// ConsolidateThreshold is the minimum importance a re-derived memory
// needs to survive consolidation into the shared list.
const ConsolidateThreshold = 0.7

// Exchange is one completed user/assistant turn handed to the curator.
type Exchange struct {
	ConversationID string
	UserID         string
	CharacterID    string
	UserMessage    string
	AssistantReply string
}

// Curator extracts, scores and stores new memories after each
// exchange, and periodically consolidates a conversation into the
// character-scoped shared-memory list.
type Curator struct {
	store    Store
	embedder Embedder
	shared   SharedStore
}

// NewCurator creates a curator over the given backends. shared may be
// nil, in which case consolidation and shared-list updates are skipped.
func NewCurator(store Store, embedder Embedder, shared SharedStore) *Curator {
	return &Curator{
		store:    store,
		embedder: embedder,
		shared:   shared,
	}
}

// ExtractAndStore derives at most one memory from a completed exchange
// and stores it. Failures never propagate to the turn: an exchange
// that cannot be embedded or saved is logged and skipped.
func (c *Curator) ExtractAndStore(ctx context.Context, exch Exchange) {
	content := ExtractCandidate(exch.UserMessage, exch.AssistantReply)
	if content == "" {
		return
	}

	rec := NewRecord(exch.UserID, exch.CharacterID, exch.ConversationID, content)

	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("[CURATOR] Skipping memory, embed failed: %v", err)
		return
	}
	rec.Embedding = embedding

	if err := c.store.Save(ctx, rec); err != nil {
		log.Printf("[CURATOR] Failed to store memory: %v", err)
		return
	}

	if c.shared != nil {
		if err := c.shared.Append(ctx, exch.UserID, exch.CharacterID, content); err != nil {
			log.Printf("[CURATOR] Failed to update shared memories: %v", err)
		}
	}

	log.Printf("[CURATOR] Stored %s memory for conversation %s: %q",
		rec.Type, exch.ConversationID, content)
}

// Consolidate re-derives memory candidates from a conversation's full
// message history, keeps those above ConsolidateThreshold, and merges
// them into the character-scoped shared-memory list (FIFO cap applies).
// Called periodically or on conversation end.
func (c *Curator) Consolidate(ctx context.Context, userID, characterID, conversationID string, messages []core.Message) error {
	if c.shared == nil {
		return nil
	}

	var kept []string
	for i := 0; i+1 < len(messages); i++ {
		cur, next := messages[i], messages[i+1]
		if cur.Role != core.RoleUser || next.Role != core.RoleAssistant {
			continue
		}
		content := ExtractCandidate(cur.Content, next.Content)
		if content == "" {
			continue
		}
		if ScoreImportance(content) > ConsolidateThreshold {
			kept = append(kept, content)
		}
	}

	if len(kept) == 0 {
		return nil
	}

	if err := c.shared.Append(ctx, userID, characterID, kept...); err != nil {
		return fmt.Errorf("merge consolidated memories: %w", err)
	}

	log.Printf("[CURATOR] Consolidated %d memories from conversation %s", len(kept), conversationID)
	return nil
}
