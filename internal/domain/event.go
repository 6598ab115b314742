package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAlarm           = "alarm"
	EventDeviceOverspeed = "deviceOverspeed"
	EventTest            = "test"
)

const (
	AlarmGeneral   = "general"
	AlarmSOS       = "sos"
	AlarmOverspeed = "overspeed"
	AlarmBraking   = "braking"
	AlarmAccident  = "accident"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	DeviceID   int64          `json:"deviceId"`
	PositionID string         `json:"positionId,omitempty"`
	ServerTime time.Time      `json:"serverTime"`
	Attributes map[string]any `json:"attributes"`

	// NotificationSent records successful delivery per notificator type.
	NotificationSent map[string]bool `json:"notificationSent,omitempty"`
}

func NewEvent(eventType string, deviceID int64, positionID string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		DeviceID:   deviceID,
		PositionID: positionID,
		ServerTime: time.Now().UTC(),
		Attributes: make(map[string]any),
	}
}

// NewTestEvent builds the synthetic event used to test notificators.
func NewTestEvent() *Event {
	return NewEvent(EventTest, 0, "")
}

// Clone copies the event with its own attribute and sent-flag maps.
func (e *Event) Clone() *Event {
	c := *e
	if e.Attributes != nil {
		c.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			c.Attributes[k] = v
		}
	}
	if e.NotificationSent != nil {
		c.NotificationSent = make(map[string]bool, len(e.NotificationSent))
		for k, v := range e.NotificationSent {
			c.NotificationSent[k] = v
		}
	}
	return &c
}

func (e *Event) Set(key string, value any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = value
}

func (e *Event) Alarm() string {
	s, _ := e.Attributes[KeyAlarm].(string)
	return s
}

func (e *Event) Double(key string) float64 {
	switch v := e.Attributes[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (e *Event) MarkSent(notificator string) {
	if e.NotificationSent == nil {
		e.NotificationSent = make(map[string]bool)
	}
	e.NotificationSent[notificator] = true
}

func (e *Event) Sent(notificator string) bool {
	return e.NotificationSent[notificator]
}

var alarmNames = map[string]string{
	"general":           "General",
	"sos":               "SOS",
	"vibration":         "Vibration",
	"movement":          "Movement",
	"lowspeed":          "Low Speed",
	"overspeed":         "Overspeed",
	"fallDown":          "Fall Down",
	"lowPower":          "Low Power",
	"lowBattery":        "Power Cut (L)",
	"fault":             "Fault",
	"powerOff":          "Power Disconnected",
	"powerOn":           "Power Connected",
	"door":              "Door",
	"lock":              "Lock",
	"unlock":            "Unlock",
	"geofence":          "Geofence",
	"geofenceEnter":     "Geofence Enter",
	"geofenceExit":      "Geofence Exit",
	"gpsAntennaCut":     "GPS Antenna Cut",
	"accident":          "Accident",
	"tow":               "Tow",
	"idle":              "Idle",
	"highRpm":           "High RPM",
	"hardAcceleration":  "Hard Acceleration",
	"hardBraking":       "Hard Braking",
	"braking":           "Hard Braking",
	"hardCornering":     "Hard Cornering",
	"laneChange":        "Lane Change",
	"fatigueDriving":    "Fatigue Driving",
	"powerCut":          "Power Cut",
	"powerDisconnected": "Power Cut (D)",
	"powerRestored":     "Power Restored",
	"jamming":           "Jamming",
	"temperature":       "Temperature",
	"parking":           "Parking",
	"shock":             "Shock",
	"bonnet":            "Bonnet",
	"footBrake":         "Foot Brake",
	"fuelLeak":          "Fuel Leak",
	"tampering":         "Tampering",
	"removing":          "Removing",
}

// AlarmName returns the display name for an alarm code, or the code itself.
func AlarmName(code string) string {
	if name, ok := alarmNames[code]; ok {
		return name
	}
	return code
}
