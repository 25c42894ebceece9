// Package local provides an in-process Store backed by a plain slice
// with brute-force cosine ranking. It supports the full Store contract
// and is the default for tests and single-node deployments.
package local

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/virtualcompanion/companion-sdk/memory"
)

// LocalStore keeps records per user+character pair in memory.
type LocalStore struct {
	mu      sync.RWMutex
	records map[pairKey][]*memory.Record
}

type pairKey struct {
	userID      string
	characterID string
}

// New creates an empty store.
func New() *LocalStore {
	return &LocalStore{records: make(map[pairKey][]*memory.Record)}
}

// Save persists a copy of the record.
func (s *LocalStore) Save(ctx context.Context, rec *memory.Record) error {
	key := pairKey{rec.UserID, rec.CharacterID}
	cp := *rec
	cp.Embedding = append([]float32(nil), rec.Embedding...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append(s.records[key], &cp)
	return nil
}

// FindSimilar ranks the pair's records by cosine similarity.
func (s *LocalStore) FindSimilar(ctx context.Context, userID, characterID string, query []float32, limit int) ([]*memory.Record, error) {
	return s.find(userID, characterID, query, limit, nil)
}

// FindByType ranks only records of the given type.
func (s *LocalStore) FindByType(ctx context.Context, userID, characterID string, typ memory.Type, query []float32, limit int) ([]*memory.Record, error) {
	return s.find(userID, characterID, query, limit, &typ)
}

func (s *LocalStore) find(userID, characterID string, query []float32, limit int, typ *memory.Type) ([]*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   *memory.Record
		score float64
	}

	var candidates []scored
	for _, rec := range s.records[pairKey{userID, characterID}] {
		if typ != nil && rec.Type != *typ {
			continue
		}
		candidates = append(candidates, scored{rec, cosine(query, rec.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*memory.Record, len(candidates))
	for i, c := range candidates {
		cp := *c.rec
		out[i] = &cp
	}
	return out, nil
}

// DeleteByConversation removes every record extracted from the
// conversation across all pairs.
func (s *LocalStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, recs := range s.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.ConversationID != conversationID {
				kept = append(kept, rec)
			}
		}
		s.records[key] = kept
	}
	return nil
}

// Touch bumps access bookkeeping for the given records.
func (s *LocalStore) Touch(ctx context.Context, userID, characterID string, ids []string) error {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, rec := range s.records[pairKey{userID, characterID}] {
		if _, ok := wanted[rec.ID]; ok {
			rec.LastAccessed = now
			rec.AccessCount++
		}
	}
	return nil
}

// Close is a no-op; everything lives in memory.
func (s *LocalStore) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
