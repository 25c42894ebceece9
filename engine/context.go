package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/memory"
)

// ConversationContext is the ephemeral per-turn context, rebuilt from
// collaborators on every turn. The short-term window never exceeds the
// engine's window size and the memory set never exceeds top-K.
type ConversationContext struct {
	ConversationID string
	UserID         string

	// Character is the profile snapshot for this turn.
	Character *core.CharacterProfile

	// Settings carries user-facing conversation settings.
	Settings map[string]string

	// RecentMessages is the bounded short-term window, oldest first.
	RecentMessages []core.Message

	// Memories is the ranked long-term retrieval for this turn.
	Memories []*memory.Record

	// SharedMemories is the character-scoped shared list, oldest first.
	SharedMemories []string

	// SessionVars carries free-form per-session state.
	SessionVars map[string]string

	CurrentTopic  string
	PreviousTopic string

	// Relationship is a snapshot; mutation happens after generation.
	Relationship *core.RelationshipState

	LastUpdated time.Time
}

// BuildContext assembles the full per-turn context. It fails only when
// the conversation (or its character) cannot be located; a failed
// embedding call degrades to an empty long-term memory set instead of
// failing the turn.
func (e *Engine) BuildContext(ctx context.Context, conversationID, message string) (*ConversationContext, error) {
	conv, err := e.store.Conversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, core.ErrContextUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load conversation %s: %v", core.ErrContextUnavailable, conversationID, err)
	}

	character, err := e.characters.GetCharacter(ctx, conv.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("%w: load character %s: %v", core.ErrContextUnavailable, conv.CharacterID, err)
	}

	recent, err := e.store.RecentMessages(ctx, conversationID, e.window)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", core.ErrContextUnavailable, err)
	}
	if len(recent) > e.window {
		recent = recent[len(recent)-e.window:]
	}

	topic := deriveTopic(message)
	previousTopic := ""
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == core.RoleUser {
			previousTopic = deriveTopic(recent[i].Content)
			break
		}
	}

	cc := &ConversationContext{
		ConversationID: conversationID,
		UserID:         conv.UserID,
		Character:      character,
		Settings:       make(map[string]string),
		RecentMessages: recent,
		SessionVars:    make(map[string]string),
		CurrentTopic:   topic,
		PreviousTopic:  previousTopic,
		LastUpdated:    time.Now(),
	}

	if e.retriever != nil {
		query := message
		if topic != "" {
			query += "\nTopic: " + topic
		}
		records, err := e.retriever.Relevant(ctx, conv.UserID, conv.CharacterID, query, e.topK)
		if err != nil {
			// Degraded turn: continue without long-term memories.
			log.Printf("[ENGINE] Memory retrieval failed, continuing without memories: %v", err)
		} else {
			cc.Memories = records
		}
	}

	if e.shared != nil {
		sharedList, err := e.shared.List(ctx, conv.UserID, conv.CharacterID)
		if err != nil {
			log.Printf("[ENGINE] Shared memory load failed: %v", err)
		} else {
			cc.SharedMemories = sharedList
		}
	}

	rel, err := e.store.Relationship(ctx, conv.UserID, conv.CharacterID)
	if err != nil {
		log.Printf("[ENGINE] Relationship load failed, starting fresh: %v", err)
		rel = core.NewRelationshipState()
	}
	cc.Relationship = rel.Clone()

	return cc, nil
}

// topicStopwords are skipped when deriving a topic label.
var topicStopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "could": {}, "every": {},
	"going": {}, "hello": {}, "other": {}, "really": {}, "something": {},
	"there": {}, "thing": {}, "think": {}, "today": {}, "right": {},
	"would": {}, "where": {}, "which": {}, "should": {}, "because": {},
}

// deriveTopic picks a coarse topic label for a message: the longest
// non-stopword of at least five letters, lowercased. Deterministic and
// intentionally crude; it only seasons the similarity query and the
// context's topic fields.
func deriveTopic(message string) string {
	best := ""
	for _, word := range strings.Fields(strings.ToLower(message)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) < 5 {
			continue
		}
		if _, skip := topicStopwords[word]; skip {
			continue
		}
		if len(word) > len(best) {
			best = word
		}
	}
	return best
}
