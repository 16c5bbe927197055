package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job is one unit of background work the queue can run.
type Job interface {
	// Name identifies the job in logs and metrics.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle runs the job against one delivered payload.
	Handle(ctx context.Context, payload interface{}) error
}

// QueueService is the publishing side of the queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig tunes the worker pool and retry policy.
type QueueConfig struct {
	Workers    int
	QueueSize  int // soft cap on waiting messages, 0 means unbounded
	RetryLimit int
	RetryDelay time.Duration
}

// Message is the wire envelope around one queued payload.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// ParsePayload decodes a delivered payload into T. Payloads coming off the
// wire arrive as json.RawMessage; values published and handled in the same
// process pass through as-is.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// normalizePayload re-encodes the generic containers json.Unmarshal produces
// so handlers can decode into their own types via ParsePayload.
func normalizePayload(payload interface{}) interface{} {
	switch payload.(type) {
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(payload)
		if err != nil {
			return payload
		}
		return json.RawMessage(data)
	default:
		return payload
	}
}
