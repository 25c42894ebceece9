package memory

import (
	"context"
	"sync"
)

// SharedList is the in-process SharedStore. Entries are kept per
// user+character pair in insertion order with oldest-first eviction at
// SharedCap. Safe for concurrent use.
type SharedList struct {
	mu    sync.RWMutex
	lists map[sharedKey][]string
	cap   int
}

type sharedKey struct {
	userID      string
	characterID string
}

// NewSharedList creates an empty shared-memory list with the standard cap.
func NewSharedList() *SharedList {
	return &SharedList{
		lists: make(map[sharedKey][]string),
		cap:   SharedCap,
	}
}

// Append adds entries for the pair, evicting oldest entries once the
// cap is reached.
func (s *SharedList) Append(ctx context.Context, userID, characterID string, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}

	key := sharedKey{userID, characterID}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	for _, e := range entries {
		if len(list) >= s.cap {
			list = list[1:]
		}
		list = append(list, e)
	}
	s.lists[key] = list
	return nil
}

// List returns a copy of the pair's entries, oldest first.
func (s *SharedList) List(ctx context.Context, userID, characterID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.lists[sharedKey{userID, characterID}]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}
