// Package events implements the registry's event channel: a synchronous
// observer bus that delivers each committed registry event to every attached
// subscriber in the order the mutations became visible, plus the hash chain
// and replay logic that let an external consumer rebuild registry state from
// the event log alone.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

// Subscriber receives registry events. Deliver is called synchronously from
// the publishing goroutine, so implementations must bound their own latency.
// Close must be idempotent.
type Subscriber interface {
	Deliver(ctx context.Context, ev models.RegistryEvent) error
	Close()
}

// SubscriberID identifies an attached subscriber
type SubscriberID int

// HandlerFunc adapts a function into a Subscriber
type HandlerFunc func(ctx context.Context, ev models.RegistryEvent) error

func (f HandlerFunc) Deliver(ctx context.Context, ev models.RegistryEvent) error { return f(ctx, ev) }
func (f HandlerFunc) Close()                                                     {}

type registration struct {
	name string
	sub  Subscriber
}

// Bus fans registry events out to subscribers. Delivery order across
// subscribers follows subscription order; a failing or panicking subscriber is
// logged and counted but never stops delivery to the others.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]registration
	lastID      SubscriberID
	stopped     bool
	logger      *slog.Logger
}

// NewBus returns an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[SubscriberID]registration),
		logger:      logger,
	}
}

// Subscribe attaches sub under name and returns its ID
func (b *Bus) Subscribe(name string, sub Subscriber) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	b.subscribers[b.lastID] = registration{name: name, sub: sub}
	telemetry.EventSubscribers.Inc()
	return b.lastID
}

// SubscribeFunc attaches a handler function
func (b *Bus) SubscribeFunc(name string, fn HandlerFunc) SubscriberID {
	return b.Subscribe(name, fn)
}

// Unsubscribe detaches and closes a subscriber. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	reg, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if ok {
		telemetry.EventSubscribers.Dec()
		reg.sub.Close()
	}
}

// Publish delivers ev to every subscriber before returning.
func (b *Bus) Publish(ctx context.Context, ev models.RegistryEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	ids := make([]SubscriberID, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	regs := make([]registration, len(ids))
	for i, id := range ids {
		regs[i] = b.subscribers[id]
	}
	b.mu.RUnlock()

	telemetry.EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	for _, reg := range regs {
		if err := deliver(ctx, reg.sub, ev); err != nil {
			telemetry.EventDeliveryFailuresTotal.WithLabelValues(reg.name).Inc()
			b.logger.Warn("event delivery failed",
				"subscriber", reg.name,
				"sequence", ev.Sequence,
				"type", ev.Type,
				"error", err,
			)
		}
	}
}

func deliver(ctx context.Context, sub Subscriber, ev models.RegistryEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Deliver(ctx, ev)
}

// Stop detaches and closes every subscriber. Publish is a no-op afterwards.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	regs := b.subscribers
	b.subscribers = make(map[SubscriberID]registration)
	b.mu.Unlock()

	for _, reg := range regs {
		telemetry.EventSubscribers.Dec()
		reg.sub.Close()
	}
}

// ChannelSubscriber buffers events for a consumer goroutine, such as a
// streaming HTTP response. Deliver never blocks: when the buffer is full the
// subscriber is marked overflowed and its channel is closed, so the consumer
// learns it missed events and can resume from the event log.
type ChannelSubscriber struct {
	mu         sync.Mutex
	ch         chan models.RegistryEvent
	closed     bool
	overflowed bool
}

// NewChannelSubscriber creates a channel subscriber with the given buffer size
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSubscriber{ch: make(chan models.RegistryEvent, buffer)}
}

// C returns the receive side of the subscriber's channel
func (c *ChannelSubscriber) C() <-chan models.RegistryEvent { return c.ch }

// Overflowed reports whether events were dropped because the buffer was full
func (c *ChannelSubscriber) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

func (c *ChannelSubscriber) Deliver(_ context.Context, ev models.RegistryEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- ev:
		return nil
	default:
		c.overflowed = true
		c.closed = true
		close(c.ch)
		return fmt.Errorf("subscriber buffer full at sequence %d", ev.Sequence)
	}
}

func (c *ChannelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
