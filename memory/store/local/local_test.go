package local_test

import (
	"context"
	"testing"

	"github.com/virtualcompanion/companion-sdk/memory"
	"github.com/virtualcompanion/companion-sdk/memory/store/local"
)

func save(t *testing.T, s *local.LocalStore, userID, characterID, conversationID, content string, vec []float32) *memory.Record {
	t.Helper()
	rec := memory.NewRecord(userID, characterID, conversationID, content)
	rec.Embedding = vec
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("save %q: %v", content, err)
	}
	return rec
}

func TestLocalStore_FindSimilarRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := local.New()

	save(t, s, "u", "c", "conv", "exact match", []float32{1, 0, 0})
	save(t, s, "u", "c", "conv", "close match", []float32{0.9, 0.1, 0})
	save(t, s, "u", "c", "conv", "orthogonal", []float32{0, 1, 0})

	got, err := s.FindSimilar(ctx, "u", "c", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Content != "exact match" || got[1].Content != "close match" {
		t.Errorf("ranking wrong: %q, %q", got[0].Content, got[1].Content)
	}
}

func TestLocalStore_FindByType(t *testing.T) {
	ctx := context.Background()
	s := local.New()

	save(t, s, "u", "c", "conv", "User's name: Sam", []float32{1, 0, 0})            // fact
	save(t, s, "u", "c", "conv", "User preference: I like tea", []float32{1, 0, 0}) // preference

	got, err := s.FindByType(ctx, "u", "c", memory.TypePreference, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("FindByType failed: %v", err)
	}
	if len(got) != 1 || got[0].Type != memory.TypePreference {
		t.Errorf("type filter broken: %+v", got)
	}
}

func TestLocalStore_PairIsolation(t *testing.T) {
	ctx := context.Background()
	s := local.New()

	save(t, s, "u1", "c1", "conv", "belongs to pair one", []float32{1, 0, 0})

	got, err := s.FindSimilar(ctx, "u2", "c1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("records leaked across pairs: %+v", got)
	}
}

func TestLocalStore_DeleteByConversation(t *testing.T) {
	ctx := context.Background()
	s := local.New()

	save(t, s, "u", "c", "conv-keep", "stays", []float32{1, 0, 0})
	save(t, s, "u", "c", "conv-drop", "goes", []float32{1, 0, 0})

	if err := s.DeleteByConversation(ctx, "conv-drop"); err != nil {
		t.Fatalf("DeleteByConversation failed: %v", err)
	}

	got, err := s.FindSimilar(ctx, "u", "c", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "stays" {
		t.Errorf("deletion wrong: %+v", got)
	}
}

func TestLocalStore_TouchBumpsAccess(t *testing.T) {
	ctx := context.Background()
	s := local.New()

	rec := save(t, s, "u", "c", "conv", "touched", []float32{1, 0, 0})

	if err := s.Touch(ctx, "u", "c", []string{rec.ID}); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := s.FindSimilar(ctx, "u", "c", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if got[0].AccessCount != 1 {
		t.Errorf("access count %d, want 1", got[0].AccessCount)
	}
	if !got[0].LastAccessed.After(rec.CreatedAt) && !got[0].LastAccessed.Equal(rec.CreatedAt) {
		t.Errorf("last accessed not advanced: %v", got[0].LastAccessed)
	}
}
