package chromem_test

import (
	"context"
	"testing"

	"github.com/virtualcompanion/companion-sdk/memory"
	"github.com/virtualcompanion/companion-sdk/memory/embedder/mock"
	"github.com/virtualcompanion/companion-sdk/memory/store/chromem"
)

func TestChromemStore_SaveAndFindSimilar(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New()
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	embedder := mock.New()

	contents := []string{
		"User's name: Sam",
		"User preference: I like rainy days",
	}
	for _, c := range contents {
		rec := memory.NewRecord("user-1", "char-1", "conv-1", c)
		rec.Embedding, err = embedder.Embed(ctx, c)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	query, err := embedder.Embed(ctx, "User's name: Sam")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}

	// Limit above the collection size exercises the shrinking retry.
	got, err := s.FindSimilar(ctx, "user-1", "char-1", query, 5)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no records returned")
	}
	// The mock embedder is deterministic, so the exact text wins.
	if got[0].Content != "User's name: Sam" {
		t.Errorf("best match %q", got[0].Content)
	}
	if got[0].Type != memory.TypeFact {
		t.Errorf("metadata round trip lost the type: %s", got[0].Type)
	}
	if got[0].Importance < 0 || got[0].Importance > 1 {
		t.Errorf("importance %v outside [0, 1]", got[0].Importance)
	}
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	s, err := chromem.New()
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	got, err := s.FindSimilar(context.Background(), "user-1", "char-1", []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("query on empty collection failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}
