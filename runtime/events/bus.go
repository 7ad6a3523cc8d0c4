package events

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans execution events out to registered sinks. Unlike a fail-fast
	// hook bus, the event stream is at-least-once per subscriber: every sink
	// receives every event even when an earlier sink errors, and Publish
	// returns the joined errors for the caller to log.
	Bus struct {
		mu    sync.RWMutex
		sinks map[*Subscription]Sink
	}

	// Subscription is an active registration on a Bus. Close removes the sink;
	// it is idempotent and thread-safe.
	Subscription struct {
		bus  *Bus
		once sync.Once
	}

	// SinkFunc adapts a function to the Sink interface. Close is a no-op.
	SinkFunc func(ctx context.Context, event Event) error
)

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// Close implements Sink.
func (SinkFunc) Close(context.Context) error { return nil }

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{sinks: make(map[*Subscription]Sink)}
}

// Register adds a sink to the bus and returns its subscription.
func (b *Bus) Register(sink Sink) (*Subscription, error) {
	if sink == nil {
		return nil, errors.New("events: sink is required")
	}
	sub := &Subscription{bus: b}
	b.mu.Lock()
	b.sinks[sub] = sink
	b.mu.Unlock()
	return sub, nil
}

// Publish delivers the event to every registered sink in a snapshot taken at
// call time. All sinks are attempted; errors are joined.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	snapshot := make([]Sink, 0, len(b.sinks))
	for _, s := range b.sinks {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if err := s.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every registered sink and empties the bus.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	snapshot := make([]Sink, 0, len(b.sinks))
	for _, s := range b.sinks {
		snapshot = append(snapshot, s)
	}
	b.sinks = make(map[*Subscription]Sink)
	b.mu.Unlock()

	var errs []error
	for _, s := range snapshot {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close removes the subscription's sink from the bus.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.sinks, s)
		s.bus.mu.Unlock()
	})
	return nil
}
