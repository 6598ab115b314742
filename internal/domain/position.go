package domain

import (
	"strconv"
	"time"
)

// Attribute keys carried on positions.
const (
	KeyAlarm       = "alarm"
	KeyApproximate = "approximate"
	KeyDistance    = "distance"
	KeySpeedLimit  = "speedLimit"

	KeyZeroLocation     = "ZeroLocation"
	KeyPreviousLocation = "PreviousLocation"
	KeyZeroPosition     = "ZeroPosition"
)

type Position struct {
	ID       string `json:"id"`
	DeviceID int64  `json:"deviceId"`
	Protocol string `json:"protocol,omitempty"`

	ServerTime time.Time `json:"serverTime"`
	DeviceTime time.Time `json:"deviceTime"`
	FixTime    time.Time `json:"fixTime"`

	Valid     bool    `json:"valid"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed"` // knots
	Course    float64 `json:"course"`
	Accuracy  float64 `json:"accuracy"`

	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`

	Attributes map[string]any `json:"attributes"`
}

func (p *Position) Has(key string) bool {
	if p == nil || p.Attributes == nil {
		return false
	}
	_, ok := p.Attributes[key]
	return ok
}

func (p *Position) Set(key string, value any) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]any)
	}
	p.Attributes[key] = value
}

// Bool reads a boolean attribute. Strings "true"/"1" and non-zero numbers
// count as set, matching what decoders put in the map.
func (p *Position) Bool(key string) bool {
	if p == nil {
		return false
	}
	switch v := p.Attributes[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

func (p *Position) Double(key string) float64 {
	if p == nil {
		return 0
	}
	switch v := p.Attributes[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (p *Position) Text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p.Attributes[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// Clone returns a copy that shares nothing mutable with p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.Attributes = make(map[string]any, len(p.Attributes))
	for k, v := range p.Attributes {
		c.Attributes[k] = v
	}
	return &c
}
