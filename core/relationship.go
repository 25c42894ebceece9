package core

import "time"

// RelationshipState tracks the long-lived relationship between one
// user and one character. It is mutated only by the orchestration core
// after a completed exchange, and is never deleted, only updated.
type RelationshipState struct {
	TrustLevel      int
	IntimacyLevel   int
	EngagementLevel int

	// EmotionalBonds maps a named bond ("affection", "humor") to a score.
	EmotionalBonds map[string]int

	// Milestones maps a milestone name to the time it was achieved.
	// A milestone is recorded once and never overwritten.
	Milestones map[string]time.Time

	// OverallScore is the aggregate relationship score.
	OverallScore int
}

// NewRelationshipState returns the zero-progress state for a pair that
// has not interacted before.
func NewRelationshipState() *RelationshipState {
	return &RelationshipState{
		EmotionalBonds: make(map[string]int),
		Milestones:     make(map[string]time.Time),
	}
}

// Clone returns a deep copy so context assembly can hand out a
// snapshot without exposing the stored maps.
func (r *RelationshipState) Clone() *RelationshipState {
	if r == nil {
		return NewRelationshipState()
	}
	c := &RelationshipState{
		TrustLevel:      r.TrustLevel,
		IntimacyLevel:   r.IntimacyLevel,
		EngagementLevel: r.EngagementLevel,
		EmotionalBonds:  make(map[string]int, len(r.EmotionalBonds)),
		Milestones:      make(map[string]time.Time, len(r.Milestones)),
		OverallScore:    r.OverallScore,
	}
	for k, v := range r.EmotionalBonds {
		c.EmotionalBonds[k] = v
	}
	for k, v := range r.Milestones {
		c.Milestones[k] = v
	}
	return c
}
