package usecase

import (
	"context"
	"errors"
	"fmt"

	domrepo "SolSignal/internal/domain/repository"
	applogger "SolSignal/pkg/logger"
	"SolSignal/pkg/queue"
)

// TrainModelsMessage is the queue message type for async training.
const TrainModelsMessage = "train_models"

// TrainModelsPayload is the queued training request.
type TrainModelsPayload struct {
	Symbol    string `json:"symbol"`
	N         int    `json:"n"`
	Timeframe string `json:"timeframe"`
}

// TrainJob consumes queued training requests.
type TrainJob struct {
	trainer *Trainer
	l       *applogger.Logger
}

func NewTrainJob(trainer *Trainer, l *applogger.Logger) *TrainJob {
	return &TrainJob{trainer: trainer, l: l}
}

func (j *TrainJob) Name() string { return "train-models" }

func (j *TrainJob) Type() string { return TrainModelsMessage }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	msg, err := queue.ParsePayload[TrainModelsPayload](payload)
	if err != nil {
		return fmt.Errorf("train payload: %w", err)
	}
	rep, err := j.trainer.Train(ctx, TrainParams{
		Symbol:    msg.Symbol,
		N:         msg.N,
		Timeframe: domrepo.NormalizeTimeframe(msg.Timeframe),
	})
	if errors.Is(err, ErrTrainingBusy) {
		// a duplicate enqueue; nothing to retry
		j.l.Warn("training already running", applogger.String("symbol", msg.Symbol))
		return nil
	}
	if err != nil {
		return err
	}
	j.l.Info("async training complete",
		applogger.String("symbol", msg.Symbol),
		applogger.Int("train_rows", rep.TrainRows),
		applogger.Int("test_rows", rep.TestRows),
	)
	return nil
}

var _ queue.Job = (*TrainJob)(nil)
