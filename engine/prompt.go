package engine

import (
	"fmt"
	"strings"

	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/model"
)

// sharedMemoryPromptLimit bounds how many shared memories the system
// prompt carries. The list itself may hold up to memory.SharedCap
// entries; the prompt only sees the most recent few.
const sharedMemoryPromptLimit = 5

// CompilePrompt flattens a conversation context and the new user
// message into a provider-ready request. Given an identical context it
// produces an identical request: no timestamps, no randomness.
func (e *Engine) CompilePrompt(cc *ConversationContext, message string) *model.Request {
	turns := make([]model.Turn, 0, len(cc.RecentMessages)+1)
	for _, msg := range cc.RecentMessages {
		turns = append(turns, model.Turn{Role: msg.Role, Content: msg.Content})
	}
	turns = append(turns, model.Turn{Role: core.RoleUser, Content: message})

	return &model.Request{
		Model:       e.modelName,
		System:      buildSystemPrompt(cc),
		Turns:       turns,
		Temperature: deriveTemperature(cc.Character),
		MaxTokens:   e.maxTokens,
	}
}

// buildSystemPrompt renders the character identity, personality,
// relationship summary and memory sections into one system block.
// Section order is fixed so the cache fingerprint stays meaningful.
func buildSystemPrompt(cc *ConversationContext) string {
	ch := cc.Character
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s. %s\n\n", ch.Name, ch.Description)

	b.WriteString("Personality traits:\n")
	fmt.Fprintf(&b, "- Openness: %d/100\n", ch.Personality.Openness)
	fmt.Fprintf(&b, "- Conscientiousness: %d/100\n", ch.Personality.Conscientiousness)
	fmt.Fprintf(&b, "- Extraversion: %d/100\n", ch.Personality.Extraversion)
	fmt.Fprintf(&b, "- Agreeableness: %d/100\n", ch.Personality.Agreeableness)
	fmt.Fprintf(&b, "- Emotional stability: %d/100\n", ch.Personality.EmotionalStability)

	if ch.Backstory != "" {
		fmt.Fprintf(&b, "\nBackstory: %s\n", ch.Backstory)
	}
	if ch.ResponseStyle != "" {
		fmt.Fprintf(&b, "\nRespond in a %s style.\n", ch.ResponseStyle)
	}
	if ch.Voice.Style != "" {
		fmt.Fprintf(&b, "Your speaking voice is %s.\n", ch.Voice.Style)
	}
	if ch.Voice.Language != "" {
		fmt.Fprintf(&b, "Speak in %s.\n", ch.Voice.Language)
	}
	if ch.CurrentMood != "" {
		fmt.Fprintf(&b, "Your current mood is %s.\n", ch.CurrentMood)
	}

	if rel := cc.Relationship; rel != nil {
		fmt.Fprintf(&b, "\nYour relationship with this user: trust %d/100, intimacy %d/100, engagement %d/100.\n",
			rel.TrustLevel, rel.IntimacyLevel, rel.EngagementLevel)
	}

	if len(cc.SharedMemories) > 0 {
		shared := cc.SharedMemories
		if len(shared) > sharedMemoryPromptLimit {
			shared = shared[len(shared)-sharedMemoryPromptLimit:]
		}
		b.WriteString("\nShared memories with this user:\n")
		for _, m := range shared {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if len(cc.Memories) > 0 {
		b.WriteString("\nThings you remember about this user:\n")
		for _, rec := range cc.Memories {
			fmt.Fprintf(&b, "- %s\n", rec.Content)
		}
	}

	b.WriteString("\nStay in character. Keep replies conversational and natural.")
	return b.String()
}

// deriveTemperature maps personality to sampling temperature: more
// openness raises it, more emotional stability lowers it. Clamped to
// the provider's [0, 1] range.
func deriveTemperature(ch *core.CharacterProfile) float64 {
	t := 0.7 + 0.3*float64(ch.Personality.Openness)/100 - 0.2*float64(ch.Personality.EmotionalStability)/100
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t
}
