package identity

import (
	"context"
	"sync"
	"time"

	"fleet-monitor/tracking/internal/domain"
)

// phoneless is the recipient used for events that belong to no device.
const phoneless = "000"

// DeviceStore loads a device profile; a nil device with a nil error means
// the device is not registered.
type DeviceStore interface {
	Device(ctx context.Context, deviceID int64) (*domain.Device, error)
}

type cacheEntry struct {
	device    *domain.Device
	expiresAt time.Time
}

// Cache keeps device profiles in memory for a TTL in front of the store.
// Unknown devices are cached too, as nil.
type Cache struct {
	local sync.Map
	store DeviceStore
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(store DeviceStore, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

func (c *Cache) Device(ctx context.Context, deviceID int64) (*domain.Device, error) {
	if raw, ok := c.local.Load(deviceID); ok {
		entry := raw.(cacheEntry)
		if c.now().Before(entry.expiresAt) {
			return entry.device, nil
		}
		c.local.Delete(deviceID)
	}

	d, err := c.store.Device(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	c.local.Store(deviceID, cacheEntry{device: d, expiresAt: c.now().Add(c.ttl)})
	return d, nil
}

// SkipAttributes returns the device's filter skip list, empty when the
// device is unknown or the lookup fails.
func (c *Cache) SkipAttributes(ctx context.Context, deviceID int64) []string {
	d, err := c.Device(ctx, deviceID)
	if err != nil {
		return nil
	}
	return d.SkipAttributes()
}

// Phone resolves the SMS recipient for a device.
func (c *Cache) Phone(ctx context.Context, deviceID int64) (string, error) {
	if deviceID == 0 {
		return phoneless, nil
	}
	d, err := c.Device(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", nil
	}
	return d.Phone, nil
}

func (c *Cache) Invalidate(deviceID int64) {
	c.local.Delete(deviceID)
}
