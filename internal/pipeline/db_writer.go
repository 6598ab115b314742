package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

type PositionWriter interface {
	BatchInsertPositions(ctx context.Context, positions []*domain.Position) error
}

type DBWriter struct {
	ch         <-chan *domain.Position
	db         PositionWriter
	batchSize  int
	flushMS    int
	retryDelay time.Duration
	log        logrus.FieldLogger
}

func NewDBWriter(
	ch <-chan *domain.Position,
	db PositionWriter,
	batchSize int,
	flushMS int,
	log logrus.FieldLogger,
) *DBWriter {
	return &DBWriter{
		ch:         ch,
		db:         db,
		batchSize:  batchSize,
		flushMS:    flushMS,
		retryDelay: 500 * time.Millisecond,
		log:        log.WithField("component", "db_writer"),
	}
}

func (w *DBWriter) Run(ctx context.Context) {
	batch := make([]*domain.Position, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case pos, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(ctx, batch)
				}
				return
			}
			batch = append(batch, pos)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(context.WithoutCancel(ctx), batch)
			}
			return
		}
	}
}

func (w *DBWriter) flush(ctx context.Context, batch []*domain.Position) {
	start := time.Now()
	defer metrics.ObserveDBWrite(start)

	err := w.db.BatchInsertPositions(ctx, batch)
	if err != nil {
		w.log.WithError(err).WithField("batch", len(batch)).Warn("db write failed, retrying")
		time.Sleep(w.retryDelay)
		err = w.db.BatchInsertPositions(ctx, batch)
		if err != nil {
			w.log.WithError(err).WithField("batch", len(batch)).Error("db write permanently failed")
			metrics.DBWriteFailures.Add(float64(len(batch)))
			return
		}
	}
	metrics.DBWriteSuccess.Add(float64(len(batch)))
}
