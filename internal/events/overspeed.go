package events

import "fleet-monitor/tracking/internal/domain"

const (
	attrSpeed      = "speed"
	attrSpeedLimit = "speedLimit"
)

// OverspeedDetector raises deviceOverspeed when a device crosses above its
// speed limit. The limit comes from the position's speedLimit attribute,
// falling back to DefaultLimit; both in knots. No limit, no events.
type OverspeedDetector struct {
	DefaultLimit float64
}

func (OverspeedDetector) Name() string { return "overspeed" }

func (d OverspeedDetector) Analyze(pos, last *domain.Position) ([]*domain.Event, error) {
	limit := d.DefaultLimit
	if pos.Has(domain.KeySpeedLimit) {
		limit = pos.Double(domain.KeySpeedLimit)
	}
	if limit <= 0 || pos.Speed <= limit {
		return nil, nil
	}
	if last != nil && last.Speed > limit {
		// still over the limit since the previous fix
		return nil, nil
	}

	ev := domain.NewEvent(domain.EventDeviceOverspeed, pos.DeviceID, pos.ID)
	ev.Set(attrSpeed, pos.Speed)
	ev.Set(attrSpeedLimit, limit)
	return []*domain.Event{ev}, nil
}
