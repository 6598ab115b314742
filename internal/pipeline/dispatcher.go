package pipeline

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

type PositionProcessor interface {
	ProcessPosition(ctx context.Context, pos *domain.Position) (*domain.Position, bool)
}

// Dispatcher feeds positions to the processor from a fixed set of shard
// workers. A device always maps to the same shard, so its positions are
// processed in submission order.
type Dispatcher struct {
	proc   PositionProcessor
	shards []chan *domain.Position
	log    logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(proc PositionProcessor, shards, queueSize int, log logrus.FieldLogger) *Dispatcher {
	d := &Dispatcher{
		proc:   proc,
		shards: make([]chan *domain.Position, shards),
		log:    log.WithField("component", "dispatcher"),
	}
	for i := range d.shards {
		d.shards[i] = make(chan *domain.Position, queueSize)
	}
	return d
}

// shardIndex maps a device to one of n shards.
func shardIndex(deviceID int64, n int) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(deviceID))
	return int(xxhash.Sum64(b[:]) % uint64(n))
}

// Submit queues pos without blocking. It returns false when the device's
// shard is full or the dispatcher has stopped.
func (d *Dispatcher) Submit(pos *domain.Position) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.shards[shardIndex(pos.DeviceID, len(d.shards))] <- pos:
		return true
	default:
		metrics.DispatchDrops.Inc()
		d.log.WithField("device_id", pos.DeviceID).Warn("shard queue full, dropping position")
		return false
	}
}

// Run processes until ctx is done, then stops accepting positions and
// drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	for _, ch := range d.shards {
		d.wg.Add(1)
		go func(ch <-chan *domain.Position) {
			defer d.wg.Done()
			for pos := range ch {
				d.proc.ProcessPosition(work, pos)
			}
		}(ch)
	}

	<-ctx.Done()
	d.Stop()
}

// Stop closes the shard queues and waits for the workers to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}
