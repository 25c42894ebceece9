package memory_test

import (
	"strings"
	"testing"

	"github.com/virtualcompanion/companion-sdk/memory"
)

func TestClassify(t *testing.T) {
	cases := map[string]memory.Type{
		"User's name: Sam":                     memory.TypeFact,
		"User preference: I like rainy days":   memory.TypePreference,
		"User went to Paris last summer":       memory.TypeEvent,
		"Something happened at work today":     memory.TypeEvent,
		"Important: call me early on weekends": memory.TypeGeneral,
	}
	for content, want := range cases {
		if got := memory.Classify(content); got != want {
			t.Errorf("Classify(%q) = %s, want %s", content, got, want)
		}
	}
}

func TestScoreImportance_BaseAndDeltas(t *testing.T) {
	cases := map[string]float64{
		"User went to the park":       0.5,
		"User always drinks coffee":   0.6,
		"Never mention spiders; user hates them and will always remember": 0.9,
	}
	for content, want := range cases {
		got := memory.ScoreImportance(content)
		if diff := got - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ScoreImportance(%q) = %v, want %v", content, got, want)
		}
	}
}

func TestScoreImportance_AlwaysInUnitInterval(t *testing.T) {
	contents := []string{
		"",
		"plain note",
		"always never important remember love hate", // all six keywords
		strings.Repeat("remember always ", 50),
	}
	for _, content := range contents {
		got := memory.ScoreImportance(content)
		if got < 0 || got > 1 {
			t.Errorf("ScoreImportance(%q) = %v, outside [0, 1]", content, got)
		}
	}
}

func TestNewRecord_PopulatesClassification(t *testing.T) {
	rec := memory.NewRecord("user-1", "char-1", "conv-1", "User's name: Sam")

	if rec.ID == "" {
		t.Error("record ID not assigned")
	}
	if rec.Type != memory.TypeFact {
		t.Errorf("type %s, want fact", rec.Type)
	}
	if rec.Importance < 0 || rec.Importance > 1 {
		t.Errorf("importance %v outside [0, 1]", rec.Importance)
	}
	if rec.CreatedAt.IsZero() || rec.LastAccessed.IsZero() {
		t.Error("timestamps not set")
	}
}
