package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/delivery"
	"github.com/virtualcompanion/companion-sdk/engine"
	"github.com/virtualcompanion/companion-sdk/memory"
	memlocal "github.com/virtualcompanion/companion-sdk/memory/store/local"
	"github.com/virtualcompanion/companion-sdk/model"
)

// fakeStore is an in-memory MessageStore. History is a fixed window
// handed back by RecentMessages; saves land in a separate log so tests
// can replay identical turns.
type fakeStore struct {
	mu       sync.Mutex
	conv     *core.Conversation
	history  []core.Message
	saved    []savedMessage
	rels     map[string]*core.RelationshipState
	failSave bool
}

type savedMessage struct {
	conversationID string
	role           core.Role
	content        string
	metadata       map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conv: &core.Conversation{
			ID:          "conv-1",
			UserID:      "user-1",
			CharacterID: "char-1",
			StartedAt:   time.Now(),
		},
		rels: make(map[string]*core.RelationshipState),
	}
}

func (s *fakeStore) Conversation(ctx context.Context, conversationID string) (*core.Conversation, error) {
	if s.conv == nil || s.conv.ID != conversationID {
		return nil, fmt.Errorf("%w: conversation %s not found", core.ErrContextUnavailable, conversationID)
	}
	return s.conv, nil
}

func (s *fakeStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.history
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]core.Message(nil), out...), nil
}

func (s *fakeStore) SaveMessage(ctx context.Context, conversationID string, role core.Role, content string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return "", errors.New("disk full")
	}
	s.saved = append(s.saved, savedMessage{conversationID, role, content, metadata})
	return fmt.Sprintf("msg-%d", len(s.saved)), nil
}

func (s *fakeStore) Relationship(ctx context.Context, userID, characterID string) (*core.RelationshipState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rel, ok := s.rels[userID+"/"+characterID]; ok {
		return rel, nil
	}
	return core.NewRelationshipState(), nil
}

func (s *fakeStore) SaveRelationship(ctx context.Context, userID, characterID string, state *core.RelationshipState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[userID+"/"+characterID] = state
	return nil
}

func (s *fakeStore) savedByRole(role core.Role) []savedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []savedMessage
	for _, m := range s.saved {
		if m.role == role {
			out = append(out, m)
		}
	}
	return out
}

// fakeDirectory serves one character.
type fakeDirectory struct {
	character *core.CharacterProfile
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{character: &core.CharacterProfile{
		ID:          "char-1",
		Name:        "Luna",
		Description: "A warm, curious companion.",
		Personality: core.PersonalityTraits{
			Openness:           70,
			Conscientiousness:  60,
			Extraversion:       80,
			Agreeableness:      75,
			EmotionalStability: 65,
		},
	}}
}

func (d *fakeDirectory) GetCharacter(ctx context.Context, characterID string) (*core.CharacterProfile, error) {
	if d.character == nil || d.character.ID != characterID {
		return nil, fmt.Errorf("character %s not found", characterID)
	}
	return d.character, nil
}

// fakeModel scripts provider behavior: fail the first failures calls,
// then reply. Streaming emits fragments one at a time.
type fakeModel struct {
	mu        sync.Mutex
	calls     int
	failures  int
	failWith  error
	reply     string
	fragments []string
}

func (m *fakeModel) Generate(ctx context.Context, req *model.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return "", m.failErr()
	}
	return m.reply, nil
}

func (m *fakeModel) GenerateStream(ctx context.Context, req *model.Request) (<-chan model.Fragment, error) {
	m.mu.Lock()
	m.calls++
	fail := m.calls <= m.failures
	m.mu.Unlock()

	out := make(chan model.Fragment, model.FragmentBuffer)
	go func() {
		defer close(out)
		if fail {
			out <- model.Fragment{Done: true, Err: m.failErr()}
			return
		}
		for _, f := range m.fragments {
			out <- model.Fragment{Text: f}
		}
		out <- model.Fragment{Done: true}
	}()
	return out, nil
}

func (m *fakeModel) failErr() error {
	if m.failWith != nil {
		return m.failWith
	}
	return fmt.Errorf("%w: 503", core.ErrProviderUnavailable)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeCache is a synchronous map cache; ristretto's async admission
// would make the hit assertions racy.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[fingerprint]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, fingerprint, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = reply
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// failingEmbedder always fails, for degraded-turn tests.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

func (failingEmbedder) Dimensions() int { return 384 }

func TestRespond_EmptyConversationHello(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{reply: "Hi there! How are you today?"}
	cache := newFakeCache()

	e := engine.New(client, store, newFakeDirectory(), engine.WithCache(cache))

	reply, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Hello"})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	if reply.Text != "Hi there! How are you today?" {
		t.Errorf("unexpected reply text: %q", reply.Text)
	}
	if reply.FromCache || reply.Fallback {
		t.Errorf("expected a fresh model reply, got FromCache=%v Fallback=%v", reply.FromCache, reply.Fallback)
	}
	if reply.ModelCalls != 1 {
		t.Errorf("expected 1 model call, got %d", reply.ModelCalls)
	}

	users := store.savedByRole(core.RoleUser)
	assistants := store.savedByRole(core.RoleAssistant)
	if len(users) != 1 || users[0].content != "Hello" {
		t.Errorf("user message not persisted: %+v", users)
	}
	if len(assistants) != 1 || assistants[0].content != reply.Text {
		t.Errorf("assistant message not persisted: %+v", assistants)
	}
	if cache.len() != 1 {
		t.Errorf("expected 1 cache entry, got %d", cache.len())
	}
}

func TestRespond_CacheHitSkipsModel(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{reply: "Cached reply content."}
	cache := newFakeCache()

	e := engine.New(client, store, newFakeDirectory(), engine.WithCache(cache))

	first, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "What's your favorite color?"})
	if err != nil {
		t.Fatalf("first Respond failed: %v", err)
	}

	second, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "What's your favorite color?"})
	if err != nil {
		t.Fatalf("second Respond failed: %v", err)
	}

	if !second.FromCache {
		t.Error("expected second reply to come from cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached text %q differs from original %q", second.Text, first.Text)
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("expected exactly 1 model call across both turns, got %d", got)
	}
	if second.ModelCalls != 0 {
		t.Errorf("cache hit should report 0 model calls, got %d", second.ModelCalls)
	}
}

func TestRespond_FallbackAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{failures: 1000}

	e := engine.New(client, store, newFakeDirectory(),
		engine.WithRetry(3, time.Millisecond))

	reply, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Tell me a story"})
	if err != nil {
		t.Fatalf("Respond should absorb provider failures, got: %v", err)
	}

	if !reply.Fallback {
		t.Fatal("expected a fallback reply")
	}
	if reply.ModelCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", reply.ModelCalls)
	}
	if want := engine.FallbackReply("Tell me a story"); reply.Text != want {
		t.Errorf("fallback text %q, want %q", reply.Text, want)
	}

	// Same message through a second failed turn lands on the same text.
	again, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Tell me a story"})
	if err != nil {
		t.Fatalf("second Respond failed: %v", err)
	}
	if again.Text != reply.Text {
		t.Errorf("fallback not deterministic: %q vs %q", again.Text, reply.Text)
	}

	// The fallback is persisted like any other assistant message.
	assistants := store.savedByRole(core.RoleAssistant)
	if len(assistants) != 2 || assistants[0].content != reply.Text {
		t.Errorf("fallback replies not persisted normally: %+v", assistants)
	}
}

func TestRespond_MalformedResponseSkipsRetry(t *testing.T) {
	ctx := context.Background()
	client := &fakeModel{failures: 1000, failWith: fmt.Errorf("%w: empty body", core.ErrMalformedResponse)}

	e := engine.New(client, newFakeStore(), newFakeDirectory(),
		engine.WithRetry(3, time.Millisecond))

	reply, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Hello"})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if !reply.Fallback {
		t.Fatal("expected fallback")
	}
	if reply.ModelCalls != 1 {
		t.Errorf("malformed response should not be retried, got %d calls", reply.ModelCalls)
	}
}

func TestRespond_PersistenceFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failSave = true
	client := &fakeModel{reply: "unused"}

	e := engine.New(client, store, newFakeDirectory())

	_, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Hello"})
	if !errors.Is(err, core.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
}

func TestRespond_StreamingChunkOrderAndSingleTerminal(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{fragments: []string{"Once ", "upon ", "a time."}}
	reg := delivery.NewRegistry(delivery.Config{HeartbeatInterval: time.Hour})

	e := engine.New(client, store, newFakeDirectory(), engine.WithDelivery(reg))

	sub := reg.Subscribe("user-1")
	defer sub.Close()

	reply, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Tell me a story", Stream: true})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply.Text != "Once upon a time." {
		t.Errorf("accumulated text %q", reply.Text)
	}

	var contents []string
	terminals := 0
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type != delivery.EventChunk {
				continue
			}
			if ev.Chunk.Done {
				terminals++
				if ev.Chunk.Error != "" {
					t.Errorf("unexpected error chunk: %s", ev.Chunk.Error)
				}
				break collect
			}
			contents = append(contents, ev.Chunk.Content)
		case <-deadline:
			t.Fatal("timed out waiting for terminal chunk")
		}
	}

	if terminals != 1 {
		t.Errorf("expected exactly 1 terminal chunk, got %d", terminals)
	}
	if strings.Join(contents, "") != "Once upon a time." {
		t.Errorf("content chunks out of order or incomplete: %v", contents)
	}
}

func TestRespond_SubscriberDisconnectDoesNotLoseGeneration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{fragments: []string{"still ", "here"}}
	reg := delivery.NewRegistry(delivery.Config{HeartbeatInterval: time.Hour})

	e := engine.New(client, store, newFakeDirectory(), engine.WithDelivery(reg))

	sub := reg.Subscribe("user-1")
	sub.Close()

	reply, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "Hello", Stream: true})
	if err != nil {
		t.Fatalf("Respond failed after disconnect: %v", err)
	}
	if reply.Text != "still here" {
		t.Errorf("reply text %q", reply.Text)
	}
	if got := store.savedByRole(core.RoleAssistant); len(got) != 1 {
		t.Errorf("generation result not persisted after disconnect: %d assistant messages", len(got))
	}
}

func TestBuildContext_UnknownConversation(t *testing.T) {
	e := engine.New(&fakeModel{}, newFakeStore(), newFakeDirectory())

	_, err := e.BuildContext(context.Background(), "missing", "Hello")
	if !errors.Is(err, core.ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
}

func TestBuildContext_WindowBound(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 30; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		store.history = append(store.history, core.Message{
			ID:      fmt.Sprintf("m%d", i),
			Role:    role,
			Content: fmt.Sprintf("message %d", i),
		})
	}

	e := engine.New(&fakeModel{}, store, newFakeDirectory(), engine.WithWindow(20))

	cc, err := e.BuildContext(context.Background(), "conv-1", "Hello")
	if err != nil {
		t.Fatalf("BuildContext failed: %v", err)
	}
	if len(cc.RecentMessages) != 20 {
		t.Fatalf("window size %d, want 20", len(cc.RecentMessages))
	}
	if cc.RecentMessages[19].ID != "m29" {
		t.Errorf("window should keep the newest messages, last = %s", cc.RecentMessages[19].ID)
	}
}

func TestBuildContext_EmbeddingFailureDegrades(t *testing.T) {
	retriever := memory.NewRetriever(memlocal.New(), failingEmbedder{})

	e := engine.New(&fakeModel{}, newFakeStore(), newFakeDirectory(),
		engine.WithRetriever(retriever))

	cc, err := e.BuildContext(context.Background(), "conv-1", "Hello")
	if err != nil {
		t.Fatalf("embedding failure must not fail the turn: %v", err)
	}
	if len(cc.Memories) != 0 {
		t.Errorf("expected empty memory set, got %d records", len(cc.Memories))
	}
}

func TestRespond_RelationshipProgression(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &fakeModel{reply: "That means a lot."}

	e := engine.New(client, store, newFakeDirectory())

	if _, err := e.Respond(ctx, &engine.Request{ConversationID: "conv-1", Message: "I love talking with you"}); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	rel, err := store.Relationship(ctx, "user-1", "char-1")
	if err != nil {
		t.Fatalf("Relationship failed: %v", err)
	}
	if rel.EngagementLevel != 1 {
		t.Errorf("engagement %d, want 1", rel.EngagementLevel)
	}
	if rel.EmotionalBonds["affection"] != 1 {
		t.Errorf("affection bond %d, want 1", rel.EmotionalBonds["affection"])
	}
	if _, ok := rel.Milestones["first_exchange"]; !ok {
		t.Error("first_exchange milestone missing")
	}
}

func TestFallbackReply_Deterministic(t *testing.T) {
	messages := []string{"Hello", "Tell me a story", "", "what's up?", "Tell me a story"}
	for _, msg := range messages {
		a := engine.FallbackReply(msg)
		b := engine.FallbackReply(msg)
		if a != b {
			t.Errorf("FallbackReply(%q) not deterministic: %q vs %q", msg, a, b)
		}
		if a == "" {
			t.Errorf("FallbackReply(%q) returned empty text", msg)
		}
	}
}
