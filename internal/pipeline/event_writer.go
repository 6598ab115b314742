package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

type EventStore interface {
	InsertEvent(ctx context.Context, ev *domain.Event) error
}

// Notifier is satisfied by notify.Registry.
type Notifier interface {
	SendAsyncAll(userID int64, ev *domain.Event, pos *domain.Position)
}

// EventWriter stores detected events and hands them to the notificators.
type EventWriter struct {
	ch     <-chan EventJob
	db     EventStore
	notify Notifier
	log    logrus.FieldLogger
}

func NewEventWriter(ch <-chan EventJob, db EventStore, notify Notifier, log logrus.FieldLogger) *EventWriter {
	return &EventWriter{ch: ch, db: db, notify: notify, log: log.WithField("component", "event_writer")}
}

func (w *EventWriter) Run(ctx context.Context) {
	for {
		select {
		case job, ok := <-w.ch:
			if !ok {
				return
			}
			w.handle(context.WithoutCancel(ctx), job)

		case <-ctx.Done():
			return
		}
	}
}

func (w *EventWriter) handle(ctx context.Context, job EventJob) {
	ev := job.Event
	if err := w.db.InsertEvent(ctx, ev); err != nil {
		metrics.EventWriteFailures.Inc()
		w.log.WithError(err).WithFields(logrus.Fields{
			"event_type": ev.Type,
			"device_id":  ev.DeviceID,
		}).Error("event insert failed")
	}

	w.notify.SendAsyncAll(0, ev, job.Position)
}
