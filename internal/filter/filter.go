package filter

import (
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
)

// Rule names, in evaluation order.
const (
	RuleInvalid     = "Invalid"
	RuleZero        = "Zero"
	RuleDuplicate   = "Duplicate"
	RuleFuture      = "Future"
	RuleAccuracy    = "Accuracy"
	RuleApproximate = "Approximate"
	RuleStatic      = "Static"
	RuleDistance    = "Distance"
	RuleMaxSpeed    = "MaxSpeed"
	RuleMinPeriod   = "MinPeriod"
)

const homeLabel = "Head Office"

type Decision int

const (
	Accept Decision = iota
	Repair
	Drop
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Repair:
		return "repair"
	case Drop:
		return "drop"
	}
	return "unknown"
}

// Config is built once at startup and never mutated. Zero values disable
// the numeric rules.
type Config struct {
	Invalid     bool
	Zero        bool
	Duplicate   bool
	Future      time.Duration
	Accuracy    float64
	Approximate bool
	Static      bool
	Distance    float64 // meters
	MaxSpeed    float64 // knots
	MinPeriod   time.Duration

	SkipLimit      time.Duration
	SkipAttributes bool

	HomeLatitude  float64
	HomeLongitude float64
}

type Result struct {
	Fired    []string
	Decision Decision
}

func (r Result) Has(rule string) bool {
	for _, f := range r.Fired {
		if f == rule {
			return true
		}
	}
	return false
}

type Chain struct {
	cfg Config
	log logrus.FieldLogger
}

func NewChain(cfg Config, log logrus.FieldLogger) *Chain {
	return &Chain{cfg: cfg, log: log.WithField("component", "filter")}
}

func (c *Chain) Config() Config {
	return c.cfg
}

func (c *Chain) invalid(p *domain.Position) bool {
	return c.cfg.Invalid && (!p.Valid ||
		p.Latitude > 90 || p.Latitude < -90 ||
		p.Longitude > 180 || p.Longitude < -180)
}

func (c *Chain) zero(p *domain.Position) bool {
	return c.cfg.Zero && p.Latitude == 0.0 && p.Longitude == 0.0
}

func (c *Chain) duplicate(p, last *domain.Position) bool {
	if !c.cfg.Duplicate || last == nil || !p.FixTime.Equal(last.FixTime) {
		return false
	}
	for key := range p.Attributes {
		if !last.Has(key) {
			return false
		}
	}
	return true
}

func (c *Chain) future(p *domain.Position, now time.Time) bool {
	return c.cfg.Future != 0 && p.FixTime.After(now.Add(c.cfg.Future))
}

func (c *Chain) accuracy(p *domain.Position) bool {
	return c.cfg.Accuracy != 0 && p.Accuracy > c.cfg.Accuracy
}

func (c *Chain) approximate(p *domain.Position) bool {
	return c.cfg.Approximate && p.Bool(domain.KeyApproximate)
}

func (c *Chain) static(p *domain.Position) bool {
	return c.cfg.Static && p.Speed == 0.0
}

func (c *Chain) distance(p, last *domain.Position) bool {
	return c.cfg.Distance != 0 && last != nil && p.Double(domain.KeyDistance) < c.cfg.Distance
}

func (c *Chain) maxSpeed(p, last *domain.Position) bool {
	if c.cfg.MaxSpeed == 0 || last == nil {
		return false
	}
	distance := p.Double(domain.KeyDistance)
	seconds := p.FixTime.Sub(last.FixTime).Seconds()
	if seconds == 0 {
		// any movement at all in zero time is a teleport
		return distance > 0
	}
	speed := domain.KnotsFromMps(distance / seconds)
	return !math.IsNaN(speed) && speed > c.cfg.MaxSpeed
}

func (c *Chain) minPeriod(p, last *domain.Position) bool {
	if c.cfg.MinPeriod == 0 || last == nil {
		return false
	}
	elapsed := p.FixTime.Sub(last.FixTime)
	return elapsed > 0 && elapsed < c.cfg.MinPeriod
}

func (c *Chain) skipLimit(p, last *domain.Position) bool {
	if c.cfg.SkipLimit == 0 || last == nil {
		return false
	}
	return p.ServerTime.Sub(last.ServerTime) > c.cfg.SkipLimit
}

func (c *Chain) skipAttributes(p *domain.Position, keys []string) bool {
	if !c.cfg.SkipAttributes {
		return false
	}
	for _, k := range keys {
		if p.Has(k) {
			return true
		}
	}
	return false
}

// Check evaluates every rule against the candidate and the device's last
// accepted position (nil when none is known). skipAttrs comes from the
// device profile. Check never touches p.
func (c *Chain) Check(p, last *domain.Position, skipAttrs []string, now time.Time) Result {
	var fired []string
	skipped := c.skipLimit(p, last) || c.skipAttributes(p, skipAttrs)

	if c.invalid(p) {
		fired = append(fired, RuleInvalid)
	}
	if c.zero(p) {
		fired = append(fired, RuleZero)
	}
	if c.duplicate(p, last) && !skipped {
		fired = append(fired, RuleDuplicate)
	}
	if c.future(p, now) {
		fired = append(fired, RuleFuture)
	}
	if c.accuracy(p) {
		fired = append(fired, RuleAccuracy)
	}
	if c.approximate(p) {
		fired = append(fired, RuleApproximate)
	}
	if c.static(p) && !skipped {
		fired = append(fired, RuleStatic)
	}
	if c.distance(p, last) && !skipped {
		fired = append(fired, RuleDistance)
	}
	if c.maxSpeed(p, last) {
		fired = append(fired, RuleMaxSpeed)
	}
	if c.minPeriod(p, last) {
		fired = append(fired, RuleMinPeriod)
	}

	res := Result{Fired: fired}
	switch {
	case c.zero(p) || !p.Valid:
		// a bad fix still gets a placeholder record
		res.Decision = Repair
	case len(fired) > 0:
		res.Decision = Drop
	default:
		res.Decision = Accept
	}
	return res
}

// Repair builds the stand-in for a zero or invalid fix: the last known
// position when there is one, otherwise the configured home coordinate.
func (c *Chain) Repair(p, last *domain.Position, now time.Time) *domain.Position {
	out := p.Clone()

	if last != nil {
		attrs := map[string]any{
			domain.KeyZeroLocation:     true,
			domain.KeyPreviousLocation: true,
		}
		for k, v := range last.Attributes {
			attrs[k] = v
		}
		out.Attributes = attrs
		out.ServerTime = last.ServerTime
		out.DeviceTime = last.DeviceTime
		out.FixTime = last.FixTime
		out.Latitude = last.Latitude
		out.Longitude = last.Longitude
		out.Altitude = last.Altitude
		out.Speed = last.Speed
		out.Course = last.Course
		out.Address = last.Address
		out.Accuracy = last.Accuracy
		out.Network = last.Network
		out.Valid = true
		return out
	}

	attrs := map[string]any{
		domain.KeyZeroLocation:     true,
		domain.KeyPreviousLocation: true,
		domain.KeyZeroPosition:     homeLabel,
	}
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	out.Attributes = attrs
	out.ServerTime = now
	out.DeviceTime = now
	out.FixTime = now
	out.Latitude = c.cfg.HomeLatitude
	out.Longitude = c.cfg.HomeLongitude
	out.Altitude = 0
	out.Speed = 0
	out.Course = 0
	out.Valid = true
	return out
}

// Apply runs Check and, when needed, Repair. It returns nil for a dropped
// position.
func (c *Chain) Apply(p, last *domain.Position, skipAttrs []string, now time.Time) (*domain.Position, Result) {
	res := c.Check(p, last, skipAttrs, now)

	if len(res.Fired) > 0 {
		c.log.WithFields(logrus.Fields{
			"device_id": p.DeviceID,
			"rules":     strings.Join(res.Fired, ","),
			"lat":       p.Latitude,
			"lon":       p.Longitude,
			"decision":  res.Decision.String(),
		}).Info("position filtered")
	}

	switch res.Decision {
	case Drop:
		return nil, res
	case Repair:
		return c.Repair(p, last, now), res
	}
	return p, res
}
