package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a memory by what kind of information it holds.
// Classification is a pure keyword mapping, not dynamic dispatch.
type Type string

const (
	TypeFact       Type = "fact"
	TypePreference Type = "preference"
	TypeEvent      Type = "event"
	TypeGeneral    Type = "general"
)

// Record is a durable long-term memory owned by a user+character pair.
type Record struct {
	// ID is the record identifier.
	ID string

	// UserID and CharacterID scope the memory to one relationship.
	UserID      string
	CharacterID string

	// ConversationID is the conversation the memory was extracted
	// from, if any.
	ConversationID string

	// Content is the free-text memory.
	Content string

	// Embedding is the similarity-search vector. Its length must match
	// the Embedder's Dimensions.
	Embedding []float32

	// Type is the keyword-derived classification.
	Type Type

	// Importance is the retention score, always in [0, 1].
	Importance float64

	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
}

// NewRecord builds a record for content extracted from a conversation,
// classifying it and scoring its importance.
func NewRecord(userID, characterID, conversationID, content string) *Record {
	now := time.Now()
	return &Record{
		ID:             uuid.New().String(),
		UserID:         userID,
		CharacterID:    characterID,
		ConversationID: conversationID,
		Content:        content,
		Type:           Classify(content),
		Importance:     ScoreImportance(content),
		CreatedAt:      now,
		LastAccessed:   now,
	}
}

// Classify maps memory content to a Type via keyword heuristics.
func Classify(content string) Type {
	c := strings.ToLower(content)
	switch {
	case strings.Contains(c, "name") || strings.Contains(c, "age") || strings.Contains(c, "location"):
		return TypeFact
	case strings.Contains(c, "like") || strings.Contains(c, "prefer") || strings.Contains(c, "favorite"):
		return TypePreference
	case strings.Contains(c, "happened") || strings.Contains(c, "did") || strings.Contains(c, "went"):
		return TypeEvent
	default:
		return TypeGeneral
	}
}

// emphasisKeywords each add a fixed delta to the base importance.
var emphasisKeywords = []string{"always", "never", "important", "remember", "love", "hate"}

const (
	importanceBase  = 0.5
	importanceDelta = 0.1
)

// ScoreImportance scores memory content in [0, 1]: base 0.5 plus 0.1
// per emphasis keyword present, capped at 1.0.
func ScoreImportance(content string) float64 {
	importance := importanceBase
	c := strings.ToLower(content)
	for _, kw := range emphasisKeywords {
		if strings.Contains(c, kw) {
			importance += importanceDelta
		}
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}
