package voicelive

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberQueueSize bounds each subscriber's pending event buffer.
const subscriberQueueSize = 200

// Subscriber is one bounded per-consumer event queue. The broadcaster owns the
// publishing side; the consumer drains Events until the channel is closed.
type Subscriber struct {
	id string
	ch chan Event
}

// Events returns the subscriber's receive channel. It is closed when the
// subscriber is unregistered or the session is torn down.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Broadcaster fans one event stream out to any number of subscriber queues.
// Publishing never blocks: a full queue drops the event for that subscriber only.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[*Subscriber]struct{}
	closed    bool
	sessionID string
	logger    *zap.Logger
}

// NewBroadcaster creates a broadcaster for one session.
func NewBroadcaster(sessionID string, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:      make(map[*Subscriber]struct{}),
		sessionID: sessionID,
		logger:    logger,
	}
}

// Register creates and tracks a new subscriber queue.
func (b *Broadcaster) Register() *Subscriber {
	sub := &Subscriber{
		id: uuid.New().String(),
		ch: make(chan Event, subscriberQueueSize),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and closes its queue. Safe to call while a
// publish is in flight and idempotent for an already removed subscriber.
func (b *Broadcaster) Unregister(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers event to every current subscriber without blocking. Events
// a saturated queue cannot hold are dropped for that subscriber only.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				zap.String("session_id", b.sessionID),
				zap.String("subscriber_id", sub.id),
				zap.String("event_type", event.Type),
			)
		}
	}
}

// Close unregisters every subscriber and rejects future registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
