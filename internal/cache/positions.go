package cache

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"fleet-monitor/tracking/internal/domain"
)

const defaultShards = 64

type shard struct {
	mu    sync.RWMutex
	items map[int64]*domain.Position
}

// Positions holds the last accepted position of every device. Reads and
// writes for different devices never contend on the same lock unless they
// hash to the same shard. Ordering per device is the caller's job.
type Positions struct {
	shards []*shard
}

func NewPositions(shards int) *Positions {
	if shards <= 0 {
		shards = defaultShards
	}
	p := &Positions{shards: make([]*shard, shards)}
	for i := range p.shards {
		p.shards[i] = &shard{items: make(map[int64]*domain.Position)}
	}
	return p
}

func (p *Positions) shardFor(deviceID int64) *shard {
	h := xxhash.Sum64String(strconv.FormatInt(deviceID, 10))
	return p.shards[h%uint64(len(p.shards))]
}

func (p *Positions) Get(deviceID int64) (*domain.Position, bool) {
	s := p.shardFor(deviceID)
	s.mu.RLock()
	pos, ok := s.items[deviceID]
	s.mu.RUnlock()
	return pos, ok
}

func (p *Positions) Put(deviceID int64, pos *domain.Position) {
	s := p.shardFor(deviceID)
	s.mu.Lock()
	s.items[deviceID] = pos
	s.mu.Unlock()
}

func (p *Positions) Delete(deviceID int64) {
	s := p.shardFor(deviceID)
	s.mu.Lock()
	delete(s.items, deviceID)
	s.mu.Unlock()
}

func (p *Positions) Len() int {
	n := 0
	for _, s := range p.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
