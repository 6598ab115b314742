package notify

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []*SMSMessage
	err  error
}

func (q *fakeQueue) Send(_ context.Context, msg *SMSMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func (q *fakeQueue) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *fakeQueue) messages() []*SMSMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*SMSMessage(nil), q.sent...)
}

type fakeDevices map[int64]*domain.Device

func (f fakeDevices) Device(_ context.Context, id int64) (*domain.Device, error) {
	return f[id], nil
}

func (f fakeDevices) Phone(_ context.Context, id int64) (string, error) {
	if id == 0 {
		return "000", nil
	}
	if d := f[id]; d != nil {
		return d.Phone, nil
	}
	return "", nil
}

type fakeMarker struct {
	mu     sync.Mutex
	marked []string
}

func (m *fakeMarker) MarkNotificationSent(_ context.Context, eventID, notificator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, eventID+"/"+notificator)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

// recorder is a notificator that remembers what it was asked to send.
type recorder struct {
	name    string
	mu      sync.Mutex
	calls   []*domain.Event
	users   []int64
	block   chan struct{}
	pool    *AsyncPool
	entered chan struct{}
}

func (r *recorder) Type() string { return r.name }

func (r *recorder) SendSync(_ context.Context, userID int64, ev *domain.Event, _ *domain.Position) {
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ev)
	r.users = append(r.users, userID)
}

func (r *recorder) SendAsync(userID int64, ev *domain.Event, pos *domain.Position) {
	if r.pool != nil {
		r.pool.Enqueue(r, userID, ev, pos)
		return
	}
	r.SendSync(context.Background(), userID, ev, pos)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
