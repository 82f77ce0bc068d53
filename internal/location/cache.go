package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
)

// radiusCache memoizes radius-query results for a short TTL. Slight
// staleness is acceptable: it trades a small matching inaccuracy for read
// throughput while drivers stream location updates.
type radiusCache struct {
	mu    sync.RWMutex
	store map[string]radiusEntry
	ttl   time.Duration
}

type radiusEntry struct {
	locs []models.DriverLocation
	ts   time.Time
}

func newRadiusCache(ttl time.Duration) *radiusCache {
	return &radiusCache{store: make(map[string]radiusEntry), ttl: ttl}
}

// cacheKey rounds the center to ~100m so nearby pickups share an entry.
func cacheKey(center models.Coord, radiusKm float64) string {
	return fmt.Sprintf("%.3f,%.3f|%.1f", center.Lat, center.Lon, radiusKm)
}

func (c *radiusCache) get(key string) ([]models.DriverLocation, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok || time.Since(e.ts) > c.ttl {
		return nil, false
	}
	out := make([]models.DriverLocation, len(e.locs))
	copy(out, e.locs)
	return out, true
}

func (c *radiusCache) set(key string, locs []models.DriverLocation) {
	if c.ttl <= 0 {
		return
	}
	cp := make([]models.DriverLocation, len(locs))
	copy(cp, locs)
	c.mu.Lock()
	c.store[key] = radiusEntry{locs: cp, ts: time.Now()}
	c.mu.Unlock()
}

func (c *radiusCache) clear() {
	c.mu.Lock()
	c.store = make(map[string]radiusEntry)
	c.mu.Unlock()
}

// sweep drops expired entries on a fixed schedule until ctx is cancelled.
func (c *radiusCache) sweep(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			for k, e := range c.store {
				if time.Since(e.ts) > c.ttl {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
