package events

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/tracking/internal/domain"
)

func pos(speed float64) *domain.Position {
	return &domain.Position{
		ID:         "p-1",
		DeviceID:   7,
		Valid:      true,
		Speed:      speed,
		Attributes: map[string]any{},
	}
}

func TestAlertDetectorDeviceAlarm(t *testing.T) {
	d := AlertDetector{}
	p := pos(30)
	p.Set(domain.KeyAlarm, domain.AlarmSOS)

	evs, err := d.Analyze(p, nil)

	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventAlarm, evs[0].Type)
	assert.Equal(t, domain.AlarmSOS, evs[0].Alarm())
	assert.Equal(t, int64(7), evs[0].DeviceID)
	assert.Equal(t, "p-1", evs[0].PositionID)
	assert.NotEmpty(t, evs[0].ID)
}

func TestAlertDetectorIgnoresRepeatedAlarm(t *testing.T) {
	last := pos(30)
	last.Set(domain.KeyAlarm, domain.AlarmSOS)
	p := pos(30)
	p.Set(domain.KeyAlarm, domain.AlarmSOS)

	evs, err := AlertDetector{IgnoreDuplicateAlerts: true}.Analyze(p, last)
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = AlertDetector{IgnoreDuplicateAlerts: false}.Analyze(p, last)
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	p.Set(domain.KeyAlarm, domain.AlarmOverspeed)
	evs, err = AlertDetector{IgnoreDuplicateAlerts: true}.Analyze(p, last)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestAlertDetectorRepeatComparesRawValues(t *testing.T) {
	d := AlertDetector{IgnoreDuplicateAlerts: true}

	last := pos(30)
	last.Set(domain.KeyAlarm, 1)
	p := pos(30)
	p.Set(domain.KeyAlarm, "1")

	evs, err := d.Analyze(p, last)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "1", evs[0].Alarm())

	last.Set(domain.KeyAlarm, "1")
	evs, err = d.Analyze(p, last)
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = d.Analyze(p, pos(30))
	require.NoError(t, err)
	assert.Len(t, evs, 1, "no alarm on the previous fix")
}

func TestAlertDetectorHarshDeceleration(t *testing.T) {
	evs, err := AlertDetector{}.Analyze(pos(20), pos(80))

	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.AlarmBraking, evs[0].Alarm())
	assert.Equal(t, domain.AlarmAccident, evs[1].Alarm())
	for _, ev := range evs {
		assert.Equal(t, 20.0, ev.Double(attrCurrentSpeed))
		assert.Equal(t, 80.0, ev.Double(attrPreviousSpeed))
	}
	assert.Equal(t, domain.AlarmAccident, Primary(evs).Alarm())
}

func TestAlertDetectorDecelerationThreshold(t *testing.T) {
	cases := []struct {
		name       string
		prev, curr float64
		want       int
	}{
		{"exactly the threshold", 60, 20, 0},
		{"just over", 60.5, 20, 2},
		{"accelerating", 20, 80, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evs, err := AlertDetector{}.Analyze(pos(tc.curr), pos(tc.prev))
			require.NoError(t, err)
			assert.Len(t, evs, tc.want)
		})
	}

	evs, err := AlertDetector{}.Analyze(pos(0), nil)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Nil(t, Primary(evs))
}

func TestOverspeedDetector(t *testing.T) {
	d := OverspeedDetector{DefaultLimit: 50}

	evs, err := d.Analyze(pos(60), pos(40))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventDeviceOverspeed, evs[0].Type)
	assert.Equal(t, 60.0, evs[0].Double(attrSpeed))
	assert.Equal(t, 50.0, evs[0].Double(attrSpeedLimit))

	evs, _ = d.Analyze(pos(65), pos(60))
	assert.Empty(t, evs, "no repeat while still over the limit")

	evs, _ = d.Analyze(pos(45), pos(60))
	assert.Empty(t, evs)

	p := pos(45)
	p.Set(domain.KeySpeedLimit, 30.0)
	evs, _ = d.Analyze(p, nil)
	require.Len(t, evs, 1)
	assert.Equal(t, 30.0, evs[0].Double(attrSpeedLimit))

	evs, _ = OverspeedDetector{}.Analyze(pos(200), nil)
	assert.Empty(t, evs)
}

type stubDetector struct {
	name string
	evs  []*domain.Event
	err  error
	boom bool
}

func (s stubDetector) Name() string { return s.name }

func (s stubDetector) Analyze(_, _ *domain.Position) ([]*domain.Event, error) {
	if s.boom {
		panic("nil map")
	}
	return s.evs, s.err
}

func TestSetIsolatesFailingDetectors(t *testing.T) {
	log, hook := test.NewNullLogger()
	good := domain.NewEvent(domain.EventAlarm, 7, "p-1")
	s := NewSet(log,
		stubDetector{name: "panics", boom: true},
		stubDetector{name: "errors", err: errors.New("bad attribute")},
		stubDetector{name: "works", evs: []*domain.Event{good}},
	)

	evs := s.Run(pos(10), nil)

	require.Len(t, evs, 1)
	assert.Same(t, good, evs[0])
	require.Len(t, hook.Entries, 2)
	assert.Equal(t, "panics", hook.Entries[0].Data["detector"])
	assert.Equal(t, "errors", hook.Entries[1].Data["detector"])
}
