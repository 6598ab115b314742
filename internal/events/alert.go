package events

import (
	"reflect"

	"fleet-monitor/tracking/internal/domain"
)

// harshDeceleration is the speed drop between two fixes, in device units
// (knots), that raises braking and accident alarms.
const harshDeceleration = 40

const (
	attrCurrentSpeed  = "currentSpeed"
	attrPreviousSpeed = "previousSpeed"
)

type AlertDetector struct {
	IgnoreDuplicateAlerts bool
}

func (AlertDetector) Name() string { return "alert" }

// Analyze reports device alarms, and raises a braking alarm followed by an
// accident alarm when speed drops by more than harshDeceleration between
// fixes. Both alarms are returned; Primary picks the accident one.
func (d AlertDetector) Analyze(pos, last *domain.Position) ([]*domain.Event, error) {
	if alarm, ok := pos.Attributes[domain.KeyAlarm]; ok && alarm != nil {
		// Repeats compare the raw values, so 1 and "1" are different alarms.
		if d.IgnoreDuplicateAlerts && last != nil && reflect.DeepEqual(alarm, last.Attributes[domain.KeyAlarm]) {
			return nil, nil
		}
		code := pos.Text(domain.KeyAlarm)
		ev := domain.NewEvent(domain.EventAlarm, pos.DeviceID, pos.ID)
		ev.Set(domain.KeyAlarm, code)
		return []*domain.Event{ev}, nil
	}

	if last != nil && last.Speed-pos.Speed > harshDeceleration {
		braking := decelerationEvent(pos, last, domain.AlarmBraking)
		accident := decelerationEvent(pos, last, domain.AlarmAccident)
		return []*domain.Event{braking, accident}, nil
	}
	return nil, nil
}

func decelerationEvent(pos, last *domain.Position, alarm string) *domain.Event {
	ev := domain.NewEvent(domain.EventAlarm, pos.DeviceID, pos.ID)
	ev.Set(domain.KeyAlarm, alarm)
	ev.Set(attrCurrentSpeed, pos.Speed)
	ev.Set(attrPreviousSpeed, last.Speed)
	return ev
}

// Primary returns the event a single-result caller would see: the last one
// produced, which for a harsh deceleration is the accident alarm.
func Primary(evs []*domain.Event) *domain.Event {
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}
