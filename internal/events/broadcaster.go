// Package events fans reconciled records out to live dashboard streams.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"callcenter/internal/metrics"

	"github.com/google/uuid"
)

// Categories name the independent subscriber sets.
const (
	CategoryCallLogs = "call_logs"
	CategoryContacts = "contacts"
)

// DefaultBuffer is the per-subscriber queue depth. A subscriber that falls this far
// behind is treated as dead, the same as a failed write.
const DefaultBuffer = 32

var ErrClosed = errors.New("events: broadcaster closed")

// Owned is implemented by every event type the broadcaster carries.
// ok is false when the event has no owning employee.
type Owned interface {
	OwnerID() (employeeID int64, ok bool)
}

// Filter restricts a subscriber to one employee. The zero value receives everything.
type Filter struct {
	EmployeeID int64
	Set        bool
}

// ForEmployee returns a filter matching only events owned by id.
func ForEmployee(id int64) Filter { return Filter{EmployeeID: id, Set: true} }

func (f Filter) matches(ev Owned) bool {
	if !f.Set {
		return true
	}
	owner, ok := ev.OwnerID()
	return ok && owner == f.EmployeeID
}

// Subscriber is one live output channel.
type Subscriber[E Owned] struct {
	ID     string
	Filter Filter

	ch     chan E
	cancel context.CancelFunc
	once   sync.Once
}

// Events is closed when the subscriber is removed from the registry.
func (s *Subscriber[E]) Events() <-chan E { return s.ch }

func (s *Subscriber[E]) close() {
	s.once.Do(func() {
		s.cancel()
		close(s.ch)
	})
}

// Broadcaster is an in-process registry of subscribers for one event category.
// Register, Unregister and Publish are safe for concurrent use.
type Broadcaster[E Owned] struct {
	category string
	buffer   int
	log      *slog.Logger

	mu     sync.Mutex
	subs   map[string]*Subscriber[E]
	closed bool
}

func NewBroadcaster[E Owned](category string, log *slog.Logger) *Broadcaster[E] {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster[E]{
		category: category,
		buffer:   DefaultBuffer,
		log:      log.With("category", category),
		subs:     map[string]*Subscriber[E]{},
	}
}

func (b *Broadcaster[E]) Category() string { return b.category }

// Register adds a subscriber. The returned context is cancelled when the subscriber is
// removed for any reason (unregister, dropped on publish, or CloseAll).
func (b *Broadcaster[E]) Register(parent context.Context, filter Filter) (*Subscriber[E], context.Context, error) {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscriber[E]{
		ID:     uuid.NewString(),
		Filter: filter,
		ch:     make(chan E, b.buffer),
		cancel: cancel,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		cancel()
		return nil, nil, ErrClosed
	}
	b.subs[sub.ID] = sub
	metrics.Subscribers.WithLabelValues(b.category).Set(float64(len(b.subs)))
	return sub, ctx, nil
}

// Unregister removes sub and releases its resources. It is idempotent.
func (b *Broadcaster[E]) Unregister(sub *Subscriber[E]) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	b.removeLocked(sub)
	b.mu.Unlock()
}

func (b *Broadcaster[E]) removeLocked(sub *Subscriber[E]) {
	if cur, ok := b.subs[sub.ID]; ok && cur == sub {
		delete(b.subs, sub.ID)
		metrics.Subscribers.WithLabelValues(b.category).Set(float64(len(b.subs)))
	}
	sub.close()
}

// Publish hands ev to every matching subscriber without blocking. A subscriber whose
// queue is full is removed in the same pass.
//
// Publishing under the registry lock keeps per-subscriber delivery in publish order.
func (b *Broadcaster[E]) Publish(ev E) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.Filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			metrics.DeliveriesTotal.WithLabelValues(b.category, metrics.DeliveryDelivered).Inc()
		default:
			metrics.DeliveriesTotal.WithLabelValues(b.category, metrics.DeliveryDropped).Inc()
			b.log.Warn("dropping slow subscriber", "subscriber_id", sub.ID)
			b.removeLocked(sub)
		}
	}
}

// Len reports the number of live subscribers.
func (b *Broadcaster[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// CloseAll removes every subscriber and rejects further registrations.
func (b *Broadcaster[E]) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, sub := range b.subs {
		b.removeLocked(sub)
	}
}
