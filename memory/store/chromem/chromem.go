// Package chromem backs the memory store with chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/virtualcompanion/companion-sdk/memory"
)

// ChromemStore implements memory.Store over chromem-go collections.
// Each user+character pair gets its own collection for namespace
// isolation.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates a new chromem-based store.
func New() (*ChromemStore, error) {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// getOrCreateCollection returns the collection for a user+character pair.
func (s *ChromemStore) getOrCreateCollection(userID, characterID string) (*chromem.Collection, error) {
	name := fmt.Sprintf("pair_%s_%s", userID, characterID)

	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(
		name,
		nil, // No custom embedding func (we provide embeddings)
		nil, // No custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[name] = col
	return col, nil
}

// Save persists a record with its embedding.
func (s *ChromemStore) Save(ctx context.Context, rec *memory.Record) error {
	col, err := s.getOrCreateCollection(rec.UserID, rec.CharacterID)
	if err != nil {
		return err
	}

	log.Printf("[CHROMEM] Storing memory: id=%s, user=%s, character=%s, type=%s",
		rec.ID, rec.UserID, rec.CharacterID, rec.Type)

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  recordMetadata(rec),
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// FindSimilar retrieves records by vector similarity, best first.
func (s *ChromemStore) FindSimilar(ctx context.Context, userID, characterID string, query []float32, limit int) ([]*memory.Record, error) {
	return s.query(ctx, userID, characterID, query, limit, nil)
}

// FindByType is FindSimilar restricted to one memory type.
func (s *ChromemStore) FindByType(ctx context.Context, userID, characterID string, typ memory.Type, query []float32, limit int) ([]*memory.Record, error) {
	where := map[string]string{"memory_type": string(typ)}
	return s.query(ctx, userID, characterID, query, limit, where)
}

func (s *ChromemStore) query(ctx context.Context, userID, characterID string, query []float32, limit int, where map[string]string) ([]*memory.Record, error) {
	col, err := s.getOrCreateCollection(userID, characterID)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	// Retry with smaller limits if necessary.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		var err error
		results, err = col.QueryEmbedding(ctx, query, currentLimit, where, nil)
		if err == nil {
			break
		}

		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				// Collection is empty
				return nil, nil
			}
			continue
		}

		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]*memory.Record, 0, len(results))
	for i, result := range results {
		rec, err := recordFromResult(userID, characterID, result)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteByConversation is not supported by chromem-go's query-oriented
// API. Conversations age out of retrieval naturally as their memories
// stop ranking; deployments needing hard deletion use a different
// Store backend.
func (s *ChromemStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	log.Printf("[CHROMEM] DeleteByConversation not supported (chromem-go limitation)")
	return nil
}

// Touch is not supported: chromem-go documents are immutable once
// added. Access bookkeeping is kept only by mutable backends.
func (s *ChromemStore) Touch(ctx context.Context, userID, characterID string, ids []string) error {
	return nil
}

// Close releases resources. chromem-go keeps everything in memory;
// nothing to do.
func (s *ChromemStore) Close() error {
	return nil
}

func recordMetadata(rec *memory.Record) map[string]string {
	return map[string]string{
		"user_id":         rec.UserID,
		"character_id":    rec.CharacterID,
		"conversation_id": rec.ConversationID,
		"memory_type":     string(rec.Type),
		"importance":      strconv.FormatFloat(rec.Importance, 'f', -1, 64),
		"created_at":      rec.CreatedAt.Format(time.RFC3339),
		"last_accessed":   rec.LastAccessed.Format(time.RFC3339),
		"access_count":    strconv.Itoa(rec.AccessCount),
	}
}

func recordFromResult(userID, characterID string, result chromem.Result) (*memory.Record, error) {
	importance, err := strconv.ParseFloat(result.Metadata["importance"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse importance: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, result.Metadata["created_at"])
	lastAccessed, _ := time.Parse(time.RFC3339, result.Metadata["last_accessed"])
	accessCount, _ := strconv.Atoi(result.Metadata["access_count"])

	return &memory.Record{
		ID:             result.ID,
		UserID:         userID,
		CharacterID:    characterID,
		ConversationID: result.Metadata["conversation_id"],
		Content:        result.Content,
		Embedding:      result.Embedding,
		Type:           memory.Type(result.Metadata["memory_type"]),
		Importance:     importance,
		CreatedAt:      createdAt,
		LastAccessed:   lastAccessed,
		AccessCount:    accessCount,
	}, nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "nResults must be") || contains(errStr, "number of documents")
}

// contains checks if a string contains a substring.
func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
