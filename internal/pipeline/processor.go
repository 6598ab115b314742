package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/cache"
	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/events"
	"fleet-monitor/tracking/internal/filter"
	"fleet-monitor/tracking/internal/metrics"
)

// LastPositionStore supplies the cold-start seed for the position cache.
type LastPositionStore interface {
	LastPosition(ctx context.Context, deviceID int64) (*domain.Position, error)
}

// ProfileSource returns the device's filter skip attributes.
type ProfileSource interface {
	SkipAttributes(ctx context.Context, deviceID int64) []string
}

// Sink receives every accepted position with the events detected on it.
type Sink interface {
	Dispatch(pos *domain.Position, evs []*domain.Event)
}

type Processor struct {
	positions *cache.Positions
	filter    *filter.Chain
	detectors *events.Set
	seeds     LastPositionStore
	profiles  ProfileSource
	sink      Sink

	locks  *deviceLocks
	seeded sync.Map
	now    func() time.Time
	log    logrus.FieldLogger
}

type ProcessorDeps struct {
	Positions *cache.Positions
	Filter    *filter.Chain
	Detectors *events.Set
	Seeds     LastPositionStore
	Profiles  ProfileSource
	Sink      Sink
}

func NewProcessor(deps ProcessorDeps, log logrus.FieldLogger) *Processor {
	return &Processor{
		positions: deps.Positions,
		filter:    deps.Filter,
		detectors: deps.Detectors,
		seeds:     deps.Seeds,
		profiles:  deps.Profiles,
		sink:      deps.Sink,
		locks:     newDeviceLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.WithField("component", "processor"),
	}
}

// ProcessPosition filters one decoded position, detects events on it and
// hands it downstream. It returns the stored position (possibly repaired)
// and true, or nil and false when the position was dropped. The caller's
// position is never modified.
func (p *Processor) ProcessPosition(ctx context.Context, in *domain.Position) (*domain.Position, bool) {
	metrics.PositionsReceived.Inc()

	unlock := p.locks.Lock(in.DeviceID)
	defer unlock()

	now := p.now()
	pos := in.Clone()
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if pos.ServerTime.IsZero() {
		pos.ServerTime = now
	}

	last := p.last(ctx, pos.DeviceID)

	var skip []string
	if p.profiles != nil {
		skip = p.profiles.SkipAttributes(ctx, pos.DeviceID)
	}

	out, res := p.filter.Apply(pos, last, skip, now)
	metrics.PositionDecisions.WithLabelValues(res.Decision.String()).Inc()
	for _, rule := range res.Fired {
		metrics.FilterRulesFired.WithLabelValues(rule).Inc()
	}
	if out == nil {
		return nil, false
	}

	evs := p.detectors.Run(out, last)
	p.positions.Put(out.DeviceID, out)
	if p.sink != nil {
		p.sink.Dispatch(out, evs)
	}
	return out, true
}

// last returns the cached position for the device, loading it from the
// store the first time the device is seen.
func (p *Processor) last(ctx context.Context, deviceID int64) *domain.Position {
	if last, ok := p.positions.Get(deviceID); ok {
		return last
	}
	if p.seeds == nil {
		return nil
	}
	if _, done := p.seeded.LoadOrStore(deviceID, struct{}{}); done {
		return nil
	}

	last, err := p.seeds.LastPosition(ctx, deviceID)
	if err != nil {
		p.seeded.Delete(deviceID)
		p.log.WithError(err).WithField("device_id", deviceID).Warn("could not seed last position")
		return nil
	}
	if last != nil {
		p.positions.Put(deviceID, last)
	}
	return last
}
