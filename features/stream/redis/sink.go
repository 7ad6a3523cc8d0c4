// Package redis publishes execution events to Redis Streams so external
// consumers (editor, desktop shell) can follow executions live. Each execution
// gets its own stream; delivery is at-least-once and consumers de-duplicate on
// node id and event name.
package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/floerr"
)

const (
	// streamPrefix namespaces per-execution streams.
	streamPrefix = "flowd:executions:"
	// maxStreamLen bounds each stream; XAdd trims approximately.
	maxStreamLen = 10_000
)

// Sink implements events.Sink on a Redis client.
type Sink struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewSink constructs a Sink. Streams expire after ttl once written; zero
// means no expiry.
func NewSink(client goredis.UniversalClient, ttl time.Duration) *Sink {
	return &Sink{client: client, ttl: ttl}
}

// Send implements events.Sink. The event payload is serialized as one JSON
// field so consumers decode a single value per entry.
func (s *Sink) Send(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		return floerr.Wrap(floerr.KindStorage, "encode event payload", err)
	}
	stream := streamPrefix + ev.ExecutionID()
	if err := s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"event":      string(ev.Type()),
			"workflowId": ev.WorkflowID(),
			"payload":    string(payload),
		},
	}).Err(); err != nil {
		return floerr.Wrap(floerr.KindStorage, "publish event", err)
	}
	if s.ttl > 0 {
		// Best effort: a failed expire leaves the stream bounded by MaxLen.
		s.client.Expire(ctx, stream, s.ttl)
	}
	return nil
}

// Close implements events.Sink.
func (s *Sink) Close(context.Context) error {
	return s.client.Close()
}
