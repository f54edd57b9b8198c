// Package progress fans live pipeline events out to per-session
// subscribers. Publishers never block: a subscriber that falls behind has
// its oldest event dropped and a lag counter incremented, so one slow
// websocket cannot stall a reconciliation.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/model"
)

const (
	// subscriberBuffer is the per-subscription channel capacity.
	subscriberBuffer = 128
	// keepAliveInterval is how often a ping is published to every live
	// subscription.
	keepAliveInterval = 15 * time.Second
)

// Subscription is one delivery channel for a session's events. The channel
// is closed by the bus after the terminal workflow_complete event or on
// Unsubscribe.
type Subscription struct {
	sessionID uuid.UUID
	ch        chan model.Event
	lagged    atomic.Uint64
	closed    bool // guarded by the bus mutex
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// SessionID returns the session this subscription follows.
func (s *Subscription) SessionID() uuid.UUID { return s.sessionID }

// Lagged returns how many events were dropped because the subscriber fell
// behind.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// Bus is the per-session publish/subscribe router. The routing table is
// the only shared mutable state; it is guarded so subscribe and
// unsubscribe are safe against concurrent publishes.
type Bus struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[*Subscription]struct{}
	logger   *slog.Logger

	keepAlive time.Duration
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		sessions:  make(map[uuid.UUID]map[*Subscription]struct{}),
		logger:    logger,
		keepAlive: keepAliveInterval,
	}
}

// Subscribe registers a new delivery channel for a session.
func (b *Bus) Subscribe(sessionID uuid.UUID) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan model.Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// after the bus already closed it.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers an event to every subscriber of its session in FIFO
// order without blocking. A zero timestamp is stamped with the current
// time. The terminal event closes all of the session's subscriptions.
func (b *Bus) Publish(event model.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.sessions[event.SessionID]
	for sub := range subs {
		b.sendLocked(sub, event)
	}

	if event.Terminal() {
		for sub := range subs {
			b.removeLocked(sub)
		}
	}
}

// sendLocked enqueues without blocking, dropping the subscriber's oldest
// event on a full buffer. The bus mutex serialises publishers, so after
// one drop the retry cannot fail.
func (b *Bus) sendLocked(sub *Subscription, event model.Event) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.lagged.Add(1)
		b.logger.Debug("progress: subscriber lagging, dropped oldest",
			"session_id", sub.sessionID, "lagged", sub.lagged.Load())
	default:
	}
	select {
	case sub.ch <- event:
	default:
		// Unreachable while the mutex is held; drop rather than block.
		sub.lagged.Add(1)
	}
}

func (b *Bus) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if subs, ok := b.sessions[sub.sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.sessions, sub.sessionID)
		}
	}
	close(sub.ch)
}

// StartKeepAlive publishes a ping to every live subscription every 15
// seconds until the context is cancelled. It blocks; run it in a
// goroutine.
func (b *Bus) StartKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pingAll()
		}
	}
}

func (b *Bus) pingAll() {
	now := time.Now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()
	for sessionID, subs := range b.sessions {
		ping := model.Event{Type: model.EventPing, SessionID: sessionID, Timestamp: now}
		for sub := range subs {
			b.sendLocked(sub, ping)
		}
	}
}
