package events

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

// Detector turns an accepted position and the device's previous accepted
// position (nil for the first one) into events. Detectors must not block.
type Detector interface {
	Name() string
	Analyze(pos, last *domain.Position) ([]*domain.Event, error)
}

type Set struct {
	detectors []Detector
	log       logrus.FieldLogger
}

func NewSet(log logrus.FieldLogger, detectors ...Detector) *Set {
	return &Set{
		detectors: detectors,
		log:       log.WithField("component", "events"),
	}
}

// Run calls every detector and concatenates what they produce. A detector
// that errors or panics contributes nothing for this position.
func (s *Set) Run(pos, last *domain.Position) []*domain.Event {
	var out []*domain.Event
	for _, d := range s.detectors {
		evs, err := s.analyze(d, pos, last)
		if err != nil {
			metrics.DetectorFailures.WithLabelValues(d.Name()).Inc()
			s.log.WithFields(logrus.Fields{
				"detector":  d.Name(),
				"device_id": pos.DeviceID,
			}).WithError(err).Error("event detector failed")
			continue
		}
		for _, ev := range evs {
			metrics.EventsDetected.WithLabelValues(ev.Type).Inc()
		}
		out = append(out, evs...)
	}
	return out
}

func (s *Set) analyze(d Detector, pos, last *domain.Position) (evs []*domain.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			evs, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Analyze(pos, last)
}
