package usecase

import (
	"context"
	"fmt"

	applogger "SolSignal/pkg/logger"
	"SolSignal/pkg/queue"
)

// ErrorDigestMessage is the queue message type carrying aggregated error logs.
const ErrorDigestMessage = "logs.error_digest"

// LogDigestJob consumes aggregated error-log batches flushed by the log
// collector and emits one summary line per batch, so repeated errors show
// up as counts instead of floods.
type LogDigestJob struct {
	l *applogger.Logger
}

func NewLogDigestJob(l *applogger.Logger) *LogDigestJob {
	return &LogDigestJob{l: l}
}

func (j *LogDigestJob) Name() string { return "error-log-digest" }

func (j *LogDigestJob) Type() string { return ErrorDigestMessage }

func (j *LogDigestJob) Handle(ctx context.Context, payload interface{}) error {
	entries, err := queue.ParsePayload[[]applogger.AggregatedLogEntry](payload)
	if err != nil {
		return fmt.Errorf("error digest payload: %w", err)
	}
	total := 0
	for _, e := range *entries {
		total += e.Count
	}
	j.l.Info("error digest",
		applogger.Int("unique", len(*entries)),
		applogger.Int("total", total),
	)
	return nil
}

var _ queue.Job = (*LogDigestJob)(nil)
