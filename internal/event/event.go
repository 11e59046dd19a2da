// Package event implements the in-memory publish/subscribe hub every game
// component communicates through. Delivery is synchronous in the publisher's
// calling context: there is no queue and no goroutine per handler, so a bus
// must never be shared between game sessions.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Payload is any typed event body. Name returns the event kind the bus
// dispatches on.
type Payload interface {
	Name() string
}

// Event is the immutable envelope handed to handlers, created at publish
// time.
type Event struct {
	ID        string
	Timestamp time.Time
	Sender    string
	Priority  int
	Payload   Payload
}

// Name returns the kind of the wrapped payload.
func (e Event) Name() string { return e.Payload.Name() }

// Handler processes one delivered event. A returned error is logged and
// swallowed at the bus boundary; it never stops delivery to other handlers.
type Handler func(ctx context.Context, e Event) error

// Token identifies one subscription for later removal.
type Token struct {
	name string
	id   uint64
	once bool
}

type subscription struct {
	id       uint64
	priority int
	once     bool
	handler  Handler
}

// Bus is a synchronous in-memory event bus.
type Bus struct {
	nextID   uint64
	handlers map[string][]subscription // durable, insertion order
	oneShots map[string][]subscription // cleared per kind after first delivery
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		oneShots: make(map[string][]subscription),
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithPriority orders delivery within one event kind; higher runs first,
// ties keep registration order.
func WithPriority(p int) SubscribeOption {
	return func(s *subscription) {
		s.priority = p
	}
}

// Subscribe registers a durable handler for the named event kind.
func (b *Bus) Subscribe(name string, h Handler, opts ...SubscribeOption) Token {
	return b.add(name, h, false, opts)
}

// SubscribeOnce registers a handler removed automatically after the first
// event of that kind is delivered.
func (b *Bus) SubscribeOnce(name string, h Handler, opts ...SubscribeOption) Token {
	return b.add(name, h, true, opts)
}

func (b *Bus) add(name string, h Handler, once bool, opts []SubscribeOption) Token {
	b.nextID++
	s := subscription{id: b.nextID, once: once, handler: h}
	for _, opt := range opts {
		opt(&s)
	}

	if once {
		b.oneShots[name] = append(b.oneShots[name], s)
	} else {
		b.handlers[name] = append(b.handlers[name], s)
	}

	return Token{name: name, id: s.id, once: once}
}

// Unsubscribe removes the subscription behind the token. Removing an unknown
// or already-removed token is not an error; it simply returns false.
func (b *Bus) Unsubscribe(t Token) bool {
	reg := b.handlers
	if t.once {
		reg = b.oneShots
	}

	subs := reg[t.name]
	for i, s := range subs {
		if s.id == t.id {
			reg[t.name] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// PublishOption annotates the envelope built at publish time.
type PublishOption func(*Event)

// WithSender records which component published the event.
func WithSender(sender string) PublishOption {
	return func(e *Event) {
		e.Sender = sender
	}
}

// WithEventPriority tags the envelope with a priority value. It is carried as
// metadata; delivery order is governed by subscription priority.
func WithEventPriority(p int) PublishOption {
	return func(e *Event) {
		e.Priority = p
	}
}

// Publish wraps the payload into an envelope and delivers it synchronously:
// durable handlers first, by descending subscription priority, then one-shot
// handlers in registration order. One-shot registrations for the kind are
// cleared afterwards even if a handler fails.
func (b *Bus) Publish(ctx context.Context, p Payload, opts ...PublishOption) Event {
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Payload:   p,
	}
	for _, opt := range opts {
		opt(&e)
	}

	name := p.Name()

	durable := make([]subscription, len(b.handlers[name]))
	copy(durable, b.handlers[name])
	sort.SliceStable(durable, func(i, j int) bool {
		return durable[i].priority > durable[j].priority
	})
	for _, s := range durable {
		b.dispatch(ctx, s.handler, e)
	}

	once := b.oneShots[name]
	delete(b.oneShots, name)
	for _, s := range once {
		b.dispatch(ctx, s.handler, e)
	}

	return e
}

// dispatch isolates one handler invocation: a panic or error is logged and
// swallowed so the remaining handlers still receive the event.
func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	if err := h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// HasListeners reports whether any durable or one-shot handler is registered
// for the kind.
func (b *Bus) HasListeners(name string) bool {
	return b.ListenerCount(name) > 0
}

// ListenerCount counts durable and one-shot registrations for the kind.
func (b *Bus) ListenerCount(name string) int {
	return len(b.handlers[name]) + len(b.oneShots[name])
}

// ClearListeners removes all registrations for the given kinds, or for every
// kind when none are given.
func (b *Bus) ClearListeners(names ...string) {
	if len(names) == 0 {
		b.handlers = make(map[string][]subscription)
		b.oneShots = make(map[string][]subscription)
		return
	}

	for _, name := range names {
		delete(b.handlers, name)
		delete(b.oneShots, name)
	}
}
