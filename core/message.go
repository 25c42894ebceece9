package core

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single persisted conversation message.
type Message struct {
	// ID is the store-assigned message identifier.
	ID string

	// ConversationID is the owning conversation.
	ConversationID string

	// Role is who authored the message.
	Role Role

	// Content is the message text.
	Content string

	// Metadata carries generation details (model, token estimate, timings).
	Metadata map[string]string

	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Conversation is the durable conversation header owned by the
// persistence collaborator. The engine never mutates it; it only needs
// the user/character binding to assemble context.
type Conversation struct {
	ID           string
	UserID       string
	CharacterID  string
	StartedAt    time.Time
	LastActivity time.Time
}
