package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

const (
	stateBatchSize = 100
	stateFlush     = 50 * time.Millisecond
)

type StateStore interface {
	PipelineStateUpdate(ctx context.Context, pos *domain.Position) error
}

// StateWriter keeps the live device state in Redis current.
type StateWriter struct {
	ch    <-chan *domain.Position
	redis StateStore
	log   logrus.FieldLogger
}

func NewStateWriter(ch <-chan *domain.Position, redis StateStore, log logrus.FieldLogger) *StateWriter {
	return &StateWriter{ch: ch, redis: redis, log: log.WithField("component", "state_writer")}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.Position, 0, stateBatchSize)
	ticker := time.NewTicker(stateFlush)
	defer ticker.Stop()

	for {
		select {
		case pos, ok := <-w.ch:
			if !ok {
				w.flushBatch(ctx, batch)
				return
			}
			batch = append(batch, pos)
			if len(batch) >= stateBatchSize {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(context.WithoutCancel(ctx), batch)
			return
		}
	}
}

func (w *StateWriter) flushBatch(ctx context.Context, batch []*domain.Position) {
	for _, pos := range batch {
		if err := w.redis.PipelineStateUpdate(ctx, pos); err != nil {
			metrics.StateWriteFailures.Inc()
			w.log.WithError(err).WithField("device_id", pos.DeviceID).Warn("redis state update failed")
		}
	}
}
