// Package engine is the orchestration core: it assembles per-turn
// context, compiles the prompt, drives the model with retry and
// fallback, post-processes the reply, and hands the finished exchange
// to persistence, memory curation and delivery fan-out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/virtualcompanion/companion-sdk/cache"
	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/delivery"
	"github.com/virtualcompanion/companion-sdk/memory"
	"github.com/virtualcompanion/companion-sdk/model"
)

// Defaults for tunable engine parameters.
const (
	DefaultWindow      = 20
	DefaultTopK        = 5
	DefaultAttempts    = 3
	DefaultBackoff     = 2 * time.Second
	DefaultCallTimeout = 30 * time.Second
	DefaultMaxReplyLen = 2000
	DefaultMaxTokens   = 1024
)

// Engine drives one conversation turn end to end.
type Engine struct {
	model      model.Client
	store      core.MessageStore
	characters core.CharacterDirectory

	retriever *memory.Retriever  // Optional: long-term memory retrieval
	curator   *memory.Curator    // Optional: post-turn memory extraction
	shared    memory.SharedStore // Optional: character-scoped shared list
	cache     cache.Cache        // Optional: response cache
	moderator core.Moderator     // Optional: content moderation boundary
	delivery  *delivery.Registry // Optional: streaming fan-out

	window      int
	topK        int
	attempts    int
	backoffBase time.Duration
	callTimeout time.Duration
	maxReplyLen int
	maxTokens   int64
	modelName   string
}

// Option configures the engine.
type Option func(*Engine)

// WithRetriever enables long-term memory retrieval during context
// assembly.
func WithRetriever(r *memory.Retriever) Option {
	return func(e *Engine) {
		e.retriever = r
	}
}

// WithCurator enables post-turn memory extraction.
func WithCurator(c *memory.Curator) Option {
	return func(e *Engine) {
		e.curator = c
	}
}

// WithSharedMemories enables the character-scoped shared-memory list in
// compiled prompts.
func WithSharedMemories(s memory.SharedStore) Option {
	return func(e *Engine) {
		e.shared = s
	}
}

// WithCache enables the best-effort response cache.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithModerator sets the content-moderation boundary applied to
// generated replies before delivery.
func WithModerator(m core.Moderator) Option {
	return func(e *Engine) {
		e.moderator = m
	}
}

// WithDelivery enables streaming fan-out to subscribers.
func WithDelivery(d *delivery.Registry) Option {
	return func(e *Engine) {
		e.delivery = d
	}
}

// WithWindow sets the short-term history window size.
func WithWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithTopK sets how many long-term memories each turn retrieves.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithRetry sets the model attempt count and the initial backoff
// between attempts. Backoff doubles per attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.attempts = attempts
		}
		if backoff > 0 {
			e.backoffBase = backoff
		}
	}
}

// WithCallTimeout bounds each individual model call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithMaxReplyLength sets the post-processing truncation bound in runes.
func WithMaxReplyLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxReplyLen = n
		}
	}
}

// WithModel overrides the provider's default model and token budget.
func WithModel(name string, maxTokens int64) Option {
	return func(e *Engine) {
		e.modelName = name
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// New creates an engine over the required collaborators.
func New(client model.Client, store core.MessageStore, characters core.CharacterDirectory, opts ...Option) *Engine {
	e := &Engine{
		model:       client,
		store:       store,
		characters:  characters,
		window:      DefaultWindow,
		topK:        DefaultTopK,
		attempts:    DefaultAttempts,
		backoffBase: DefaultBackoff,
		callTimeout: DefaultCallTimeout,
		maxReplyLen: DefaultMaxReplyLen,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one user turn handed to the engine.
type Request struct {
	// ConversationID identifies the conversation; it must exist.
	ConversationID string

	// Message is the new user message.
	Message string

	// Stream forwards model fragments to delivery subscribers as they
	// arrive instead of one chunk after completion.
	Stream bool
}

// Reply is the completed turn.
type Reply struct {
	// MessageID is the persisted assistant message's ID.
	MessageID string

	// Text is the final delivered reply.
	Text string

	// FromCache is set when the reply was served from the response cache.
	FromCache bool

	// Fallback is set when every model attempt failed and a canned reply
	// was substituted.
	Fallback bool

	// ModelCalls counts provider attempts made for this turn.
	ModelCalls int

	// GenerationTime is the wall time spent producing the reply text.
	GenerationTime time.Duration
}

// Respond runs one full turn: context assembly, cache check, model call
// with retry and fallback, post-processing, persistence, relationship
// update, memory curation and delivery.
//
// Every call emits exactly one terminal chunk to delivery subscribers,
// success or failure. Provider failures are invisible to the caller
// (the fallback path absorbs them); persistence failure is fatal and
// surfaces wrapping ErrPersistenceFailure.
func (e *Engine) Respond(ctx context.Context, req *Request) (*Reply, error) {
	start := time.Now()
	chunkIndex := 0

	cc, err := e.BuildContext(ctx, req.ConversationID, req.Message)
	if err != nil {
		e.publishError(cc, &chunkIndex, "context unavailable")
		return nil, err
	}

	if _, err := e.store.SaveMessage(ctx, req.ConversationID, core.RoleUser, req.Message, nil); err != nil {
		e.publishError(cc, &chunkIndex, "persistence failure")
		return nil, fmt.Errorf("%w: save user message: %v", core.ErrPersistenceFailure, err)
	}

	reply := &Reply{}
	fingerprint := ""
	if e.cache != nil {
		fingerprint = cache.Fingerprint(cc.Character.ID, req.Message, cc.RecentMessages)
		if cached, ok := e.cache.Get(ctx, fingerprint); ok {
			log.Printf("[ENGINE] Cache hit for conversation %s", req.ConversationID)
			reply.Text = cached
			reply.FromCache = true
		}
	}

	if !reply.FromCache {
		text, calls, genErr := e.generate(ctx, cc, req, &chunkIndex)
		reply.ModelCalls = calls
		if genErr != nil {
			if ctx.Err() != nil {
				e.publishError(cc, &chunkIndex, "cancelled")
				return nil, ctx.Err()
			}
			log.Printf("[ENGINE] All %d model attempts failed, using fallback: %v", calls, genErr)
			reply.Text = FallbackReply(req.Message)
			reply.Fallback = true
		} else {
			text = postProcess(text, e.maxReplyLen)
			if e.moderator != nil {
				reviewed, modErr := e.moderator.Review(ctx, text)
				if modErr != nil {
					e.publishError(cc, &chunkIndex, "policy violation")
					return nil, fmt.Errorf("moderation: %w", modErr)
				}
				text = reviewed
			}
			reply.Text = text
			if e.cache != nil && fingerprint != "" {
				e.cache.Set(ctx, fingerprint, text)
			}
		}
	}
	reply.GenerationTime = time.Since(start)

	// Streamed fragments were already delivered; everything else goes
	// out as a single content chunk before the terminal.
	if !req.Stream || reply.FromCache || reply.Fallback {
		e.publishContent(cc, &chunkIndex, reply.Text)
	}

	msgID, err := e.store.SaveMessage(ctx, req.ConversationID, core.RoleAssistant, reply.Text, e.replyMetadata(reply))
	if err != nil {
		e.publishError(cc, &chunkIndex, "persistence failure")
		return nil, fmt.Errorf("%w: save assistant message: %v", core.ErrPersistenceFailure, err)
	}
	reply.MessageID = msgID

	e.afterTurn(ctx, cc, req, reply)
	e.publishCompletion(cc, &chunkIndex)

	return reply, nil
}

// generate drives the model with bounded retry. Transient failures
// (timeout, unavailable) retry with doubling backoff; a malformed
// response goes straight to the caller's fallback. A streamed attempt
// that fails after emitting fragments is not retried, so subscribers
// never see duplicated content.
func (e *Engine) generate(ctx context.Context, cc *ConversationContext, req *Request, chunkIndex *int) (string, int, error) {
	preq := e.CompilePrompt(cc, req.Message)

	var lastErr error
	backoff := e.backoffBase
	calls := 0
	for attempt := 1; attempt <= e.attempts; attempt++ {
		calls++
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		var (
			text    string
			emitted bool
			err     error
		)
		if req.Stream && e.delivery != nil {
			text, emitted, err = e.streamOnce(callCtx, cc, preq, chunkIndex)
		} else {
			text, err = e.model.Generate(callCtx, preq)
		}
		cancel()

		if err == nil {
			return text, calls, nil
		}
		lastErr = err

		if emitted {
			log.Printf("[ENGINE] Stream failed after emitting content, not retrying: %v", err)
			break
		}
		if !transient(err) {
			break
		}
		if attempt < e.attempts {
			log.Printf("[ENGINE] Model attempt %d/%d failed, retrying in %s: %v",
				attempt, e.attempts, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", calls, ctx.Err()
			}
			backoff *= 2
		}
	}
	return "", calls, lastErr
}

// streamOnce runs one streamed attempt, forwarding each fragment to
// delivery subscribers as a content chunk while accumulating the full
// text. emitted reports whether any fragment reached subscribers.
func (e *Engine) streamOnce(ctx context.Context, cc *ConversationContext, preq *model.Request, chunkIndex *int) (string, bool, error) {
	fragments, err := e.model.GenerateStream(ctx, preq)
	if err != nil {
		return "", false, err
	}

	var b strings.Builder
	emitted := false
	for frag := range fragments {
		if frag.Done {
			if frag.Err != nil {
				return b.String(), emitted, frag.Err
			}
			break
		}
		if frag.Text == "" {
			continue
		}
		b.WriteString(frag.Text)
		e.publishContent(cc, chunkIndex, frag.Text)
		emitted = true
	}

	if b.Len() == 0 {
		return "", emitted, fmt.Errorf("%w: empty stream", core.ErrMalformedResponse)
	}
	return b.String(), emitted, nil
}

// afterTurn runs the post-turn side effects: relationship progression
// and memory curation. Failures here never fail the turn.
func (e *Engine) afterTurn(ctx context.Context, cc *ConversationContext, req *Request, reply *Reply) {
	next := updateRelationship(cc.Relationship, req.Message)
	if err := e.store.SaveRelationship(ctx, cc.UserID, cc.Character.ID, next); err != nil {
		log.Printf("[ENGINE] Failed to save relationship state: %v", err)
	}

	if e.curator != nil {
		e.curator.ExtractAndStore(ctx, memory.Exchange{
			ConversationID: req.ConversationID,
			UserID:         cc.UserID,
			CharacterID:    cc.Character.ID,
			UserMessage:    req.Message,
			AssistantReply: reply.Text,
		})
	}
}

func (e *Engine) replyMetadata(reply *Reply) map[string]string {
	md := map[string]string{
		"model":         e.modelName,
		"tokens":        strconv.Itoa(len(reply.Text) / 4),
		"generation_ms": strconv.FormatInt(reply.GenerationTime.Milliseconds(), 10),
	}
	if reply.FromCache {
		md["cached"] = "true"
	}
	if reply.Fallback {
		md["fallback"] = "true"
	}
	return md
}

func (e *Engine) publishContent(cc *ConversationContext, chunkIndex *int, text string) {
	if e.delivery == nil || cc == nil {
		return
	}
	e.delivery.Publish(cc.UserID, core.StreamingChunk{
		Content:   text,
		Index:     *chunkIndex,
		Timestamp: time.Now(),
	})
	*chunkIndex++
}

func (e *Engine) publishCompletion(cc *ConversationContext, chunkIndex *int) {
	if e.delivery == nil || cc == nil {
		return
	}
	e.delivery.Publish(cc.UserID, core.CompletionChunk(*chunkIndex))
	*chunkIndex++
}

func (e *Engine) publishError(cc *ConversationContext, chunkIndex *int, reason string) {
	if e.delivery == nil || cc == nil {
		return
	}
	e.delivery.Publish(cc.UserID, core.ErrorChunk(*chunkIndex, reason))
	*chunkIndex++
}

// transient reports whether a model failure is worth retrying.
func transient(err error) bool {
	return errors.Is(err, core.ErrProviderTimeout) || errors.Is(err, core.ErrProviderUnavailable)
}
