package pipeline

import (
	"sync"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

// EventJob pairs an event with the position it was detected on.
type EventJob struct {
	Event    *domain.Event
	Position *domain.Position
}

// Fanout copies each accepted position to the history and live-state
// writers and each event to an event writer. Events are sharded by device
// so one writer per shard stores and notifies a device's events in order.
// A full channel drops the item for that sink only.
type Fanout struct {
	DBChan     chan *domain.Position
	StateChan  chan *domain.Position
	EventChans []chan EventJob

	mu     sync.RWMutex
	closed bool
}

// NewFanout sizes each event shard at eventSize. eventShards below one is
// treated as one.
func NewFanout(dbSize, stateSize, eventSize, eventShards int) *Fanout {
	if eventShards < 1 {
		eventShards = 1
	}
	f := &Fanout{
		DBChan:     make(chan *domain.Position, dbSize),
		StateChan:  make(chan *domain.Position, stateSize),
		EventChans: make([]chan EventJob, eventShards),
	}
	for i := range f.EventChans {
		f.EventChans[i] = make(chan EventJob, eventSize)
	}
	return f
}

func (f *Fanout) Dispatch(pos *domain.Position, evs []*domain.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	select {
	case f.DBChan <- pos:
	default:
		metrics.ChannelDrops.WithLabelValues("db").Inc()
	}

	select {
	case f.StateChan <- pos:
	default:
		metrics.ChannelDrops.WithLabelValues("state").Inc()
	}

	if len(evs) == 0 {
		return
	}
	events := f.EventChans[shardIndex(pos.DeviceID, len(f.EventChans))]
	for _, ev := range evs {
		select {
		case events <- EventJob{Event: ev, Position: pos}:
		default:
			metrics.ChannelDrops.WithLabelValues("event").Inc()
		}
	}
}

// Close closes every channel so writers flush and exit. Later Dispatch
// calls are ignored.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.DBChan)
	close(f.StateChan)
	for _, ch := range f.EventChans {
		close(ch)
	}
}
