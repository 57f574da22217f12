package frontend

import (
	"sort"
	"sync"

	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/spot"
)

const defaultCacheSize = 100

// Cache keeps the most recent spots delivered to any session, for the REST
// endpoints. It implements store.Sink.
type Cache struct {
	sync.RWMutex
	spots   []spot.Spot
	maxSize int
}

// NewCache creates an empty cache holding at most maxSize spots.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &Cache{
		spots:   make([]spot.Spot, 0, maxSize),
		maxSize: maxSize,
	}
}

// AddSpot adds a spot, replacing an existing entry for the same station,
// frequency and cluster. It reports whether an entry was replaced.
func (c *Cache) AddSpot(s spot.Spot) bool {
	c.Lock()
	defer c.Unlock()

	for i := range c.spots {
		if c.spots[i].DXCall == s.DXCall &&
			c.spots[i].FrequencyKHz == s.FrequencyKHz &&
			c.spots[i].Cluster == s.Cluster {
			// Move to the tail so eviction order stays oldest-first.
			copy(c.spots[i:], c.spots[i+1:])
			c.spots[len(c.spots)-1] = s
			return true
		}
	}

	c.spots = append(c.spots, s)
	if len(c.spots) > c.maxSize {
		c.spots = append(c.spots[:0], c.spots[len(c.spots)-c.maxSize:]...)
	}
	return false
}

// Store implements store.Sink.
func (c *Cache) Store(_ context.Context, s spot.Spot) error {
	c.AddSpot(s)
	return nil
}

// Len returns the number of cached spots.
func (c *Cache) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.spots)
}

// GetAllSpots returns a copy of the cache, newest first.
func (c *Cache) GetAllSpots() []spot.Spot {
	c.RLock()
	spots := append([]spot.Spot{}, c.spots...)
	c.RUnlock()

	sort.SliceStable(spots, func(i, j int) bool {
		return spots[i].ReceivedAt.After(spots[j].ReceivedAt)
	})
	return spots
}
