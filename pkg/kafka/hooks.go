package kafka

import (
	"context"

	applogger "SolSignal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling.
type ConsumerHook interface {
	// BeforeHandle runs before the first delivery attempt and may enrich
	// the handler context.
	BeforeHandle(ctx context.Context, topic string, km kafka.Message) context.Context
	// OnError runs once per message after its retries are exhausted.
	OnError(ctx context.Context, topic string, km kafka.Message, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message) context.Context {
	return ctx
}

func (NoopHook) OnError(context.Context, string, kafka.Message, error) {}

type traceKey struct{}

// WithTraceID stores a correlation id in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceIDFrom returns the correlation id stored by WithTraceID, if any.
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// TraceHook threads trace_id message headers into the handler context and
// logs terminal failures with their correlation id and offset.
type TraceHook struct {
	l *applogger.Logger
}

func NewTraceHook(l *applogger.Logger) *TraceHook { return &TraceHook{l: l} }

func (h *TraceHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message) context.Context {
	return WithTraceID(ctx, headerTraceID(km))
}

func (h *TraceHook) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	h.l.Error("kafka message failed",
		applogger.String("topic", topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.String("trace_id", TraceIDFrom(ctx)),
		applogger.Error(err),
	)
}

func headerTraceID(km kafka.Message) string {
	for _, h := range km.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
