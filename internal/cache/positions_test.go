package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/tracking/internal/domain"
)

func TestPositionsGetMissing(t *testing.T) {
	c := NewPositions(4)

	pos, ok := c.Get(42)
	assert.False(t, ok)
	assert.Nil(t, pos)
}

func TestPositionsPutOverwrites(t *testing.T) {
	c := NewPositions(4)
	c.Put(1, &domain.Position{DeviceID: 1, Latitude: 1})
	c.Put(1, &domain.Position{DeviceID: 1, Latitude: 2})

	pos, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.Latitude)
	assert.Equal(t, 1, c.Len())

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestPositionsConcurrentDevices(t *testing.T) {
	c := NewPositions(0)

	var wg sync.WaitGroup
	for d := int64(1); d <= 50; d++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Put(id, &domain.Position{DeviceID: id, Speed: float64(i)})
				_, _ = c.Get(id)
			}
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
	pos, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, 99.0, pos.Speed)
}
