package delivery

import "sync"

// heartbeatQueueCap bounds how many events may sit in a subscriber's
// pending queue before incoming heartbeats are shed. Content chunks
// are never shed: a slow subscriber delays only itself, and its
// in-flight generation still reaches it in full.
const heartbeatQueueCap = 64

// Subscription is one live attachment to a user channel. Events() is
// consumed by the transport; Close() detaches in O(1) without blocking
// publishers or losing the generation.
type Subscription struct {
	userID  string
	channel *userChannel

	mu      sync.Mutex
	pending []Event
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	events chan Event
}

func newSubscription(userID string, ch *userChannel) *Subscription {
	sub := &Subscription{
		userID:  userID,
		channel: ch,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		events:  make(chan Event, 16),
	}
	go sub.forward()
	return sub
}

// Events returns the subscriber's ordered event stream. The channel is
// closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// UserID returns the identity this subscription is attached to.
func (s *Subscription) UserID() string {
	return s.userID
}

// Close detaches the subscription. Safe to call more than once and
// safe to call while a generation is publishing; pending values for
// this subscriber are discarded, the generation itself is unaffected.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.channel.remove(s)
		close(s.done)
	})
}

// enqueue appends an event to the pending queue. Publishers never
// block here: the queue grows as needed for content and sheds
// heartbeats under pressure.
func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	if ev.Type == EventHeartbeat && len(s.pending) >= heartbeatQueueCap {
		s.shedOldestHeartbeatLocked()
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shedOldestHeartbeatLocked drops the oldest queued heartbeat to make
// room. If the queue is all content, nothing is dropped.
func (s *Subscription) shedOldestHeartbeatLocked() {
	for i, ev := range s.pending {
		if ev.Type == EventHeartbeat {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// forward drains the pending queue into the consumer channel,
// preserving order. Exits on Close.
func (s *Subscription) forward() {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}
