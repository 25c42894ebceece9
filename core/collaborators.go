package core

import "context"

// CharacterDirectory is the character catalog collaborator. The core
// only reads profile snapshots; catalog CRUD lives outside the engine.
type CharacterDirectory interface {
	// GetCharacter returns the profile for characterID.
	GetCharacter(ctx context.Context, characterID string) (*CharacterProfile, error)
}

// MessageStore is the persistence collaborator for conversations,
// messages and relationship state. The engine reads and writes through
// this narrow interface; the backing store is interchangeable.
type MessageStore interface {
	// Conversation loads the conversation header, or fails with an
	// error wrapping ErrContextUnavailable when it does not exist.
	Conversation(ctx context.Context, conversationID string) (*Conversation, error)

	// RecentMessages returns up to limit messages in chronological
	// order, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// SaveMessage persists one message and returns its assigned ID.
	SaveMessage(ctx context.Context, conversationID string, role Role, content string, metadata map[string]string) (string, error)

	// Relationship loads the state for a user+character pair. A pair
	// with no history returns a fresh zero state, not an error.
	Relationship(ctx context.Context, userID, characterID string) (*RelationshipState, error)

	// SaveRelationship upserts the state for a user+character pair.
	SaveRelationship(ctx context.Context, userID, characterID string, state *RelationshipState) error
}

// Moderator is the content-moderation boundary. Review returns the
// text to deliver (possibly redacted) or an error wrapping
// ErrPolicyViolation. The core applies the decision; it never makes one.
type Moderator interface {
	Review(ctx context.Context, text string) (string, error)
}
