package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fleet-monitor/tracking/internal/cache"
	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/events"
	"fleet-monitor/tracking/internal/filter"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type recordingSink struct {
	mu        sync.Mutex
	positions []*domain.Position
	events    []*domain.Event
}

func (s *recordingSink) Dispatch(pos *domain.Position, evs []*domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, pos)
	s.events = append(s.events, evs...)
}

type mockSeeds struct {
	mock.Mock
}

func (m *mockSeeds) LastPosition(ctx context.Context, deviceID int64) (*domain.Position, error) {
	args := m.Called(ctx, deviceID)
	p, _ := args.Get(0).(*domain.Position)
	return p, args.Error(1)
}

type staticProfiles map[int64][]string

func (s staticProfiles) SkipAttributes(_ context.Context, deviceID int64) []string {
	return s[deviceID]
}

type fixture struct {
	proc      *Processor
	positions *cache.Positions
	sink      *recordingSink
}

func newFixture(seeds LastPositionStore, profiles ProfileSource) *fixture {
	log := quietLogger()
	f := &fixture{positions: cache.NewPositions(8), sink: &recordingSink{}}
	f.proc = NewProcessor(ProcessorDeps{
		Positions: f.positions,
		Filter: filter.NewChain(filter.Config{
			Invalid:       true,
			Zero:          true,
			Duplicate:     true,
			Future:        24 * time.Hour,
			SkipLimit:     10 * time.Minute,
			HomeLatitude:  9.018015,
			HomeLongitude: 38.795576,
		}, log),
		Detectors: events.NewSet(log, events.AlertDetector{IgnoreDuplicateAlerts: true}),
		Seeds:     seeds,
		Profiles:  profiles,
		Sink:      f.sink,
	}, log)
	f.proc.now = func() time.Time { return t0.Add(time.Hour) }
	return f
}

func fix(deviceID int64, lat, lon, speed float64, at time.Time) *domain.Position {
	return &domain.Position{
		DeviceID:   deviceID,
		ServerTime: at,
		DeviceTime: at,
		FixTime:    at,
		Valid:      true,
		Latitude:   lat,
		Longitude:  lon,
		Speed:      speed,
		Attributes: map[string]any{},
	}
}

func TestOutOfRangeLatitudeIsDropped(t *testing.T) {
	f := newFixture(nil, nil)

	out, ok := f.proc.ProcessPosition(context.Background(), fix(1, 95.0, 38.7, 0, t0))

	assert.False(t, ok)
	assert.Nil(t, out)
	_, cached := f.positions.Get(1)
	assert.False(t, cached)
	assert.Empty(t, f.sink.positions)
}

func TestZeroInvalidFirstPositionIsRepairedToHome(t *testing.T) {
	f := newFixture(nil, nil)
	in := fix(1, 0, 0, 25, t0)
	in.Valid = false

	out, ok := f.proc.ProcessPosition(context.Background(), in)

	require.True(t, ok)
	assert.Equal(t, 9.018015, out.Latitude)
	assert.Equal(t, 38.795576, out.Longitude)
	assert.True(t, out.Valid)
	assert.Zero(t, out.Speed)
	assert.True(t, out.Bool(domain.KeyZeroLocation))
	assert.True(t, out.Bool(domain.KeyPreviousLocation))

	cached, _ := f.positions.Get(1)
	assert.Same(t, out, cached)
	require.Len(t, f.sink.positions, 1)
}

func TestZeroInvalidWithCachedLastCopiesIt(t *testing.T) {
	f := newFixture(nil, nil)
	last := fix(1, 9.018, 38.795, 30, t0)
	last.ID = "last"
	f.positions.Put(1, last)

	in := fix(1, 0, 0, 0, t0.Add(time.Minute))
	in.Valid = false
	out, ok := f.proc.ProcessPosition(context.Background(), in)

	require.True(t, ok)
	assert.Equal(t, 9.018, out.Latitude)
	assert.Equal(t, 38.795, out.Longitude)
	assert.Equal(t, last.FixTime, out.FixTime)
	assert.Equal(t, 30.0, out.Speed)
	assert.True(t, out.Valid)
	assert.True(t, out.Bool(domain.KeyZeroLocation))
	assert.NotEqual(t, "last", out.ID)
}

func TestDuplicateIsDroppedAndCacheUnchanged(t *testing.T) {
	f := newFixture(nil, nil)
	last := fix(1, 9.0, 38.7, 10, t0)
	last.ServerTime = t0.Add(55 * time.Minute)
	last.Set("ignition", true)
	f.positions.Put(1, last)

	in := fix(1, 9.0, 38.7, 10, t0)
	in.Set("ignition", true)
	out, ok := f.proc.ProcessPosition(context.Background(), in)

	assert.False(t, ok)
	assert.Nil(t, out)
	cached, _ := f.positions.Get(1)
	assert.Same(t, last, cached)
}

func TestDuplicateAcceptedUnderSkipOverrides(t *testing.T) {
	t.Run("skip limit", func(t *testing.T) {
		f := newFixture(nil, nil)
		last := fix(1, 9.0, 38.7, 10, t0)
		f.positions.Put(1, last)

		// server time is stamped an hour after last's
		in := fix(1, 9.0, 38.7, 10, t0)
		in.ServerTime = time.Time{}
		_, ok := f.proc.ProcessPosition(context.Background(), in)
		assert.True(t, ok)
	})

	t.Run("skip attribute", func(t *testing.T) {
		cfg := filter.Config{Duplicate: true, SkipAttributes: true}
		f := newFixture(nil, staticProfiles{1: {"io239"}})
		f.proc.filter = filter.NewChain(cfg, quietLogger())
		last := fix(1, 9.0, 38.7, 10, t0)
		last.Set("io239", 1)
		f.positions.Put(1, last)

		in := fix(1, 9.0, 38.7, 10, t0)
		in.Set("io239", 1)
		_, ok := f.proc.ProcessPosition(context.Background(), in)
		assert.True(t, ok)
	})
}

func TestHarshDecelerationEmitsBrakingAndAccident(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, ok := f.proc.ProcessPosition(ctx, fix(1, 9.0, 38.7, 80, t0))
	require.True(t, ok)
	_, ok = f.proc.ProcessPosition(ctx, fix(1, 9.001, 38.701, 20, t0.Add(10*time.Second)))
	require.True(t, ok)

	require.Len(t, f.sink.events, 2)
	assert.Equal(t, domain.AlarmBraking, f.sink.events[0].Alarm())
	assert.Equal(t, domain.AlarmAccident, f.sink.events[1].Alarm())
	assert.Equal(t, domain.AlarmAccident, events.Primary(f.sink.events).Alarm())
	for _, ev := range f.sink.events {
		assert.Equal(t, 20.0, ev.Double("currentSpeed"))
		assert.Equal(t, 80.0, ev.Double("previousSpeed"))
		assert.Equal(t, f.sink.positions[1].ID, ev.PositionID)
	}
}

func TestRepeatedAlarmIsSuppressed(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := fix(1, 9.0, 38.7+float64(i)/1000, 10, t0.Add(time.Duration(i)*time.Minute))
		p.Set(domain.KeyAlarm, domain.AlarmSOS)
		_, ok := f.proc.ProcessPosition(ctx, p)
		require.True(t, ok)
	}

	assert.Len(t, f.sink.events, 1)
}

func TestColdStartSeedsOnce(t *testing.T) {
	seeds := &mockSeeds{}
	seeds.On("LastPosition", mock.Anything, int64(9)).Return(nil, nil).Once()
	f := newFixture(seeds, nil)

	for i := 0; i < 3; i++ {
		_, ok := f.proc.ProcessPosition(context.Background(), fix(9, 95, 0, 0, t0))
		assert.False(t, ok)
	}
	seeds.AssertExpectations(t)
}

func TestColdStartSeedFeedsFilter(t *testing.T) {
	stored := fix(4, 9.0, 38.7, 10, t0)
	stored.ServerTime = t0.Add(59 * time.Minute)
	seeds := &mockSeeds{}
	seeds.On("LastPosition", mock.Anything, int64(4)).Return(stored, nil).Once()
	f := newFixture(seeds, nil)

	_, ok := f.proc.ProcessPosition(context.Background(), fix(4, 9.0, 38.7, 10, t0))

	assert.False(t, ok, "duplicate of the stored position")
	cached, _ := f.positions.Get(4)
	assert.Same(t, stored, cached)
}

func TestColdStartSeedErrorIsRetried(t *testing.T) {
	seeds := &mockSeeds{}
	seeds.On("LastPosition", mock.Anything, int64(5)).Return(nil, errors.New("db down")).Once()
	seeds.On("LastPosition", mock.Anything, int64(5)).Return(nil, nil).Once()
	f := newFixture(seeds, nil)

	f.proc.ProcessPosition(context.Background(), fix(5, 95, 0, 0, t0))
	f.proc.ProcessPosition(context.Background(), fix(5, 95, 0, 0, t0))
	f.proc.ProcessPosition(context.Background(), fix(5, 95, 0, 0, t0))

	seeds.AssertExpectations(t)
}

func TestInputIsNotModified(t *testing.T) {
	f := newFixture(nil, nil)
	in := fix(1, 0, 0, 0, t0)
	in.Valid = false
	in.ServerTime = time.Time{}

	out, ok := f.proc.ProcessPosition(context.Background(), in)

	require.True(t, ok)
	assert.NotSame(t, in, out)
	assert.Empty(t, in.ID)
	assert.True(t, in.ServerTime.IsZero())
	assert.False(t, in.Valid)
	assert.NotEmpty(t, out.ID)
}

func TestConcurrentDevices(t *testing.T) {
	f := newFixture(nil, nil)
	var wg sync.WaitGroup
	for d := int64(1); d <= 20; d++ {
		wg.Add(1)
		go func(d int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				f.proc.ProcessPosition(context.Background(), fix(d, 9, 38+float64(i)/100, 10, t0.Add(time.Duration(i)*time.Second)))
			}
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 20, f.positions.Len())
	assert.Len(t, f.sink.positions, 20*50)
	assert.Zero(t, f.proc.locks.len())
}
