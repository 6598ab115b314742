package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleet-monitor/tracking/internal/domain"
)

// Deduplicator remembers recently delivered events. Claim reports true when
// the caller is the first within the window and should deliver.
type Deduplicator interface {
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// DedupKey identifies "the same event again" for one channel: same device,
// same type and same alarm code.
func DedupKey(channel string, ev *domain.Event) string {
	return fmt.Sprintf("notify:%s:%d:%s:%s", channel, ev.DeviceID, ev.Type, ev.Alarm())
}

// Tracked reports whether ev takes part in duplicate suppression. Only
// speeding repeats are suppressed; every other alarm is always delivered,
// as are events without a device.
func Tracked(ev *domain.Event) bool {
	if ev.DeviceID == 0 {
		return false
	}
	switch ev.Type {
	case domain.EventDeviceOverspeed:
		return true
	case domain.EventAlarm:
		return ev.Alarm() == domain.AlarmOverspeed
	}
	return false
}

// RedisClaimer is the part of the Redis store the deduplicator needs.
type RedisClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduplicator shares the suppression window across instances.
type RedisDeduplicator struct {
	store RedisClaimer
}

func NewRedisDeduplicator(store RedisClaimer) *RedisDeduplicator {
	return &RedisDeduplicator{store: store}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	return d.store.Claim(ctx, key, window)
}

func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	return d.store.Release(ctx, key)
}

// MemoryDeduplicator keeps claims in process.
type MemoryDeduplicator struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{claims: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.claims[key] = now.Add(window)

	// keep the map from growing without bound
	if len(d.claims) > 10000 {
		for k, exp := range d.claims {
			if !now.Before(exp) {
				delete(d.claims, k)
			}
		}
	}
	return true, nil
}

func (d *MemoryDeduplicator) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.claims, key)
	d.mu.Unlock()
	return nil
}
