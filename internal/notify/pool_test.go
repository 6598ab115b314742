package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/tracking/internal/domain"
)

func TestSendAsyncDoesNotWaitForDelivery(t *testing.T) {
	pool := NewAsyncPool(1, 4, time.Second, quietLogger())
	pool.Start()
	slow := &recorder{name: "slow", block: make(chan struct{}), pool: pool}

	done := make(chan struct{})
	go func() {
		slow.SendAsync(0, domain.NewEvent(domain.EventAlarm, 1, ""), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendAsync blocked on a hanging notificator")
	}

	close(slow.block)
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, 1, slow.count())
}

func TestFullQueueDrops(t *testing.T) {
	pool := NewAsyncPool(1, 1, time.Second, quietLogger())
	pool.Start()
	slow := &recorder{name: "slow", block: make(chan struct{}), entered: make(chan struct{}, 1), pool: pool}
	ev := domain.NewEvent(domain.EventAlarm, 1, "")

	require.True(t, pool.Enqueue(slow, 0, ev, nil))
	<-slow.entered // worker is now busy

	assert.True(t, pool.Enqueue(slow, 0, ev, nil))
	assert.False(t, pool.Enqueue(slow, 0, ev, nil))

	close(slow.block)
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, 2, slow.count())
	assert.False(t, pool.Enqueue(slow, 0, ev, nil))
}

type panicky struct{ recorder }

func (p *panicky) SendSync(context.Context, int64, *domain.Event, *domain.Position) {
	panic("boom")
}

func TestPoolSurvivesPanickingNotificator(t *testing.T) {
	pool := NewAsyncPool(1, 4, time.Second, quietLogger())
	pool.Start()
	bad := &panicky{recorder{name: "bad"}}
	good := &recorder{name: "good"}
	ev := domain.NewEvent(domain.EventAlarm, 1, "")

	pool.Enqueue(bad, 0, ev, nil)
	pool.Enqueue(good, 0, ev, nil)

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, 1, good.count())
}

type deadlineSpy struct {
	recorder
	deadline chan time.Duration
}

func (d *deadlineSpy) SendSync(ctx context.Context, _ int64, _ *domain.Event, _ *domain.Position) {
	dl, _ := ctx.Deadline()
	d.deadline <- time.Until(dl)
}

func TestDeliveryIsBoundedByTimeout(t *testing.T) {
	pool := NewAsyncPool(1, 1, 200*time.Millisecond, quietLogger())
	pool.Start()
	spy := &deadlineSpy{recorder: recorder{name: "spy"}, deadline: make(chan time.Duration, 1)}

	pool.Enqueue(spy, 0, domain.NewTestEvent(), nil)

	left := <-spy.deadline
	assert.LessOrEqual(t, left, 200*time.Millisecond)
	assert.Greater(t, left, time.Duration(0))
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestMemoryDeduplicator(t *testing.T) {
	d := NewMemoryDeduplicator()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := d.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = d.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = d.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)

	require.NoError(t, d.Release(ctx, "k"))
	ok, _ = d.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestDedupKeyAndTracking(t *testing.T) {
	ev := alarmEvent(9, domain.AlarmOverspeed)
	assert.Equal(t, "notify:smsApp:9:alarm:overspeed", DedupKey(TypeSMSApp, ev))
	assert.True(t, Tracked(ev))
	assert.True(t, Tracked(domain.NewEvent(domain.EventDeviceOverspeed, 9, "")))

	assert.False(t, Tracked(alarmEvent(9, domain.AlarmSOS)))
	assert.False(t, Tracked(alarmEvent(9, domain.AlarmAccident)))
	assert.False(t, Tracked(domain.NewTestEvent()))
	assert.False(t, Tracked(alarmEvent(0, domain.AlarmOverspeed)))
}
