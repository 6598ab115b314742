package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

type delivery struct {
	n      Notificator
	userID int64
	ev     *domain.Event
	pos    *domain.Position
}

// AsyncPool runs SendSync calls for all notificators on a fixed set of
// workers, each delivery bounded by its own timeout.
type AsyncPool struct {
	queue   chan delivery
	timeout time.Duration
	workers int
	log     logrus.FieldLogger

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
}

func NewAsyncPool(workers, queueSize int, timeout time.Duration, log logrus.FieldLogger) *AsyncPool {
	return &AsyncPool{
		queue:   make(chan delivery, queueSize),
		timeout: timeout,
		workers: workers,
		log:     log.WithField("component", "notify_pool"),
	}
}

func (p *AsyncPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run()
		}
	})
}

func (p *AsyncPool) run() {
	defer p.wg.Done()
	for d := range p.queue {
		p.deliver(d)
	}
}

func (p *AsyncPool) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationFailures.WithLabelValues(d.n.Type()).Inc()
			p.log.WithFields(logrus.Fields{
				"notificator": d.n.Type(),
				"event_type":  d.ev.Type,
				"device_id":   d.ev.DeviceID,
			}).Errorf("notificator panicked: %v", r)
		}
	}()
	d.n.SendSync(ctx, d.userID, d.ev, d.pos)
}

// Enqueue never blocks. A full queue or a pool that is shutting down drops
// the delivery.
func (p *AsyncPool) Enqueue(n Notificator, userID int64, ev *domain.Event, pos *domain.Position) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- delivery{n: n, userID: userID, ev: ev, pos: pos}:
		return true
	default:
		metrics.NotificationQueueDrops.Inc()
		p.log.WithFields(logrus.Fields{
			"notificator": n.Type(),
			"event_type":  ev.Type,
			"device_id":   ev.DeviceID,
		}).Warn("notification queue full, dropping")
		return false
	}
}

// Shutdown stops accepting work and waits for queued deliveries to finish
// or for ctx to expire.
func (p *AsyncPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
