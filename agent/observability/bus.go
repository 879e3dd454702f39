// Package observability provides the in-process event bus, span tracer, and
// metrics collector that the planner, executor, and runtime report through.
package observability

import (
	"context"
	"errors"
	"sync"

	"github.com/agentsdk/agentsdk/agentcore"
)

type (
	// Subscriber reacts to published runtime events. HandleEvent should
	// return an error only when processing failed in a way that should halt
	// delivery to the remaining subscribers.
	Subscriber interface {
		HandleEvent(ctx context.Context, event agentcore.Event) error
	}

	// SubscriberFunc adapts a plain function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event agentcore.Event) error

	// Subscription represents an active registration on a Bus. Close is
	// idempotent and safe to call multiple times.
	Subscription interface {
		Close() error
	}

	// Bus fans events out to registered subscribers in registration order,
	// stopping at the first subscriber error. It satisfies
	// agentcore.EventBus via Publish.
	Bus struct {
		mu          sync.RWMutex
		subscribers []*subscription
	}

	subscription struct {
		bus  *Bus
		sub  Subscriber
		once sync.Once
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event agentcore.Event) error {
	return f(ctx, event)
}

// NewBus constructs an empty, ready-to-use event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Register adds sub to the bus and returns a Subscription that removes it
// on Close.
func (b *Bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("observability: subscriber is required")
	}
	s := &subscription{bus: b, sub: sub}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
	return s, nil
}

// PublishContext delivers event to every currently registered subscriber in
// registration order, stopping at the first subscriber error. A snapshot of
// subscribers is taken before iteration, so concurrent Register/Close calls
// never affect the current delivery.
func (b *Bus) PublishContext(ctx context.Context, event agentcore.Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s.sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Publish delivers event using a background context and discards the
// fail-fast error, satisfying agentcore.EventBus's fire-and-forget contract.
func (b *Bus) Publish(event agentcore.Event) {
	_ = b.PublishContext(context.Background(), event)
}

// Close removes the subscriber from the bus. Close is idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		subs := s.bus.subscribers
		for i, existing := range subs {
			if existing == s {
				s.bus.subscribers = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
