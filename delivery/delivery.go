// Package delivery fans generated output out to live client
// connections. Each user has at most one broadcast channel; every
// subscriber to that channel observes every published value, in
// publication order. The transport behind a subscription (websocket,
// SSE) is someone else's concern.
package delivery

import (
	"sync"
	"time"

	"github.com/virtualcompanion/companion-sdk/core"
)

// EventType distinguishes fan-out payloads.
type EventType string

const (
	// EventChunk carries a generated StreamingChunk.
	EventChunk EventType = "chunk"

	// EventHeartbeat is a keepalive marker emitted on a fixed interval
	// while a user channel has subscribers.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one value observed by a subscriber.
type Event struct {
	Type      EventType
	UserID    string
	Chunk     core.StreamingChunk // valid when Type == EventChunk
	Timestamp time.Time
}

// Config configures the registry.
type Config struct {
	// HeartbeatInterval is how often keepalive markers are emitted to
	// live channels. Default 30s.
	HeartbeatInterval time.Duration
}

// Registry owns the per-user broadcast channels with explicit
// lifecycle: a channel is created on first subscribe and destroyed on
// last unsubscribe. Publishing to a user with no channel is a no-op;
// generation never depends on a listener being attached.
type Registry struct {
	mu        sync.RWMutex
	channels  map[string]*userChannel
	heartbeat time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Registry{
		channels:  make(map[string]*userChannel),
		heartbeat: cfg.HeartbeatInterval,
	}
}

// Subscribe attaches a new subscriber to the user's channel, creating
// the channel (and starting its heartbeat) on first subscribe. The
// subscriber is attached under the registry lock so a concurrent
// last-unsubscribe cannot drop the channel between lookup and attach.
func (r *Registry) Subscribe(userID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[userID]
	if !ok {
		ch = newUserChannel(userID, r)
		r.channels[userID] = ch
		go ch.heartbeatLoop(r.heartbeat)
	}

	sub := newSubscription(userID, ch)
	ch.add(sub)
	return sub
}

// Publish broadcasts a chunk to every subscriber of the user's
// channel. It never blocks on slow subscribers and is a no-op when
// nobody is listening.
func (r *Registry) Publish(userID string, chunk core.StreamingChunk) {
	r.mu.RLock()
	ch := r.channels[userID]
	r.mu.RUnlock()

	if ch == nil {
		return
	}
	ch.broadcast(Event{
		Type:      EventChunk,
		UserID:    userID,
		Chunk:     chunk,
		Timestamp: time.Now(),
	})
}

// Subscribers reports how many subscriptions the user's channel has.
func (r *Registry) Subscribers(userID string) int {
	r.mu.RLock()
	ch := r.channels[userID]
	r.mu.RUnlock()

	if ch == nil {
		return 0
	}
	return ch.count()
}

// drop removes a channel once its last subscriber is gone. The
// double-check under the write lock covers a concurrent Subscribe
// that revived the channel.
func (r *Registry) drop(ch *userChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current := r.channels[ch.userID]; current == ch && ch.count() == 0 {
		delete(r.channels, ch.userID)
		ch.stop()
	}
}

// userChannel is one user's broadcast channel.
type userChannel struct {
	userID   string
	registry *Registry

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	stopOnce sync.Once
	stopped  chan struct{}
}

func newUserChannel(userID string, registry *Registry) *userChannel {
	return &userChannel{
		userID:   userID,
		registry: registry,
		subs:     make(map[*Subscription]struct{}),
		stopped:  make(chan struct{}),
	}
}

func (ch *userChannel) add(sub *Subscription) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.subs[sub] = struct{}{}
}

func (ch *userChannel) remove(sub *Subscription) {
	ch.mu.Lock()
	delete(ch.subs, sub)
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		ch.registry.drop(ch)
	}
}

func (ch *userChannel) count() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

func (ch *userChannel) broadcast(ev Event) {
	ch.mu.Lock()
	subs := make([]*Subscription, 0, len(ch.subs))
	for sub := range ch.subs {
		subs = append(subs, sub)
	}
	ch.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(ev)
	}
}

func (ch *userChannel) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ch.broadcast(Event{
				Type:      EventHeartbeat,
				UserID:    ch.userID,
				Timestamp: time.Now(),
			})
		case <-ch.stopped:
			return
		}
	}
}

func (ch *userChannel) stop() {
	ch.stopOnce.Do(func() { close(ch.stopped) })
}
