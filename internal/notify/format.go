package notify

import (
	"context"
	"fmt"
	"strings"

	"fleet-monitor/tracking/internal/domain"
)

// DeviceLookup resolves device profiles for message text and recipients.
type DeviceLookup interface {
	Device(ctx context.Context, deviceID int64) (*domain.Device, error)
}

// Formatter builds the short text used by SMS and push messages.
type Formatter struct {
	devices DeviceLookup
}

func NewFormatter(devices DeviceLookup) *Formatter {
	return &Formatter{devices: devices}
}

func (f *Formatter) deviceName(ctx context.Context, deviceID int64) string {
	if f.devices != nil {
		if d, err := f.devices.Device(ctx, deviceID); err == nil && d != nil {
			switch {
			case d.Name != "":
				return d.Name
			case d.PlateNumber != "":
				return d.PlateNumber
			}
		}
	}
	return fmt.Sprintf("Device %d", deviceID)
}

func kph(knots float64) string {
	return fmt.Sprintf("%.0f km/h", domain.KphFromKnots(knots))
}

// Short formats ev for a text message. pos may be nil.
func (f *Formatter) Short(ctx context.Context, ev *domain.Event, pos *domain.Position) string {
	if ev.Type == domain.EventTest {
		return "Test notification"
	}

	var b strings.Builder
	b.WriteString(f.deviceName(ctx, ev.DeviceID))
	b.WriteString(": ")

	switch ev.Type {
	case domain.EventAlarm:
		b.WriteString(domain.AlarmName(ev.Alarm()))
		b.WriteString(" alarm")
		switch ev.Alarm() {
		case domain.AlarmBraking, domain.AlarmAccident:
			fmt.Fprintf(&b, ", speed dropped from %s to %s",
				kph(ev.Double("previousSpeed")), kph(ev.Double("currentSpeed")))
		}
	case domain.EventDeviceOverspeed:
		fmt.Fprintf(&b, "exceeds the speed %s (limit %s)",
			kph(ev.Double("speed")), kph(ev.Double("speedLimit")))
	default:
		b.WriteString(ev.Type)
	}

	if pos != nil && pos.Address != "" {
		b.WriteString(" near ")
		b.WriteString(pos.Address)
	}
	return b.String()
}
