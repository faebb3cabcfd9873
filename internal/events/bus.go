package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler reacts to a published event. Errors are logged, never returned
// to the publisher.
type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	name    string
	types   map[Type]bool
	handler Handler
}

// Bus fans committed events out to in-process subscribers. It runs
// handlers synchronously in registration order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h for the given types; no types means every event.
func (b *Bus) Subscribe(name string, h Handler, types ...Type) {
	sub := subscription{name: name, handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish delivers each event to matching subscribers.
func (b *Bus) Publish(ctx context.Context, evts ...Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, evt := range evts {
		for _, sub := range subs {
			if sub.types != nil && !sub.types[evt.Type] {
				continue
			}
			if err := b.call(ctx, sub, evt); err != nil {
				b.logger.Warn("event handler failed",
					"handler", sub.name, "event", string(evt.Type), "entity_id", evt.EntityID, "error", err)
			}
		}
	}
}

func (b *Bus) call(ctx context.Context, sub subscription, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler(ctx, evt)
}
