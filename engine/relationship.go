package engine

import (
	"strings"
	"time"

	"github.com/virtualcompanion/companion-sdk/core"
)

// Keywords that move relationship dimensions when they appear in a
// user message.
var (
	affectionKeywords = []string{"love", "miss you", "adore", "care about you", "sweet"}
	trustKeywords     = []string{"secret", "confession", "promise", "truth", "trust you", "never told"}
)

// updateRelationship applies the post-turn relationship progression to
// a copy of the snapshot: engagement always advances, trust and
// intimacy advance on their keyword cues, and milestones land when
// their thresholds are crossed. Pure except for milestone timestamps.
func updateRelationship(state *core.RelationshipState, userMessage string) *core.RelationshipState {
	s := state.Clone()
	lower := strings.ToLower(userMessage)

	s.EngagementLevel = bump(s.EngagementLevel, 1)

	if containsAny(lower, affectionKeywords) {
		s.IntimacyLevel = bump(s.IntimacyLevel, 2)
		s.EmotionalBonds["affection"]++
	}
	if containsAny(lower, trustKeywords) {
		s.TrustLevel = bump(s.TrustLevel, 2)
		s.EmotionalBonds["trust"]++
	}

	markMilestone(s, "first_exchange", s.EngagementLevel >= 1)
	markMilestone(s, "regular_companion", s.EngagementLevel >= 10)
	markMilestone(s, "close_bond", s.EngagementLevel >= 50)
	markMilestone(s, "first_affection", s.EmotionalBonds["affection"] >= 1)
	markMilestone(s, "confidant", s.EmotionalBonds["trust"] >= 3)

	s.OverallScore = (s.TrustLevel + s.IntimacyLevel + s.EngagementLevel) / 3
	return s
}

func markMilestone(s *core.RelationshipState, name string, reached bool) {
	if !reached {
		return
	}
	if _, ok := s.Milestones[name]; ok {
		return
	}
	s.Milestones[name] = time.Now()
}

func bump(level, by int) int {
	level += by
	if level > 100 {
		level = 100
	}
	return level
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
