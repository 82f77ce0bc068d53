package location

import (
	"context"
	"sync"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
)

// MemoryBackend is an in-process geo index. Radius queries are a full scan;
// fleets small enough to run without Redis are small enough for that.
type MemoryBackend struct {
	mu        sync.RWMutex
	positions map[string]models.DriverLocation
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{positions: make(map[string]models.DriverLocation)}
}

func (m *MemoryBackend) Upsert(ctx context.Context, loc models.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[loc.DriverID] = loc
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, driverID string) (models.DriverLocation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.positions[driverID]
	return loc, ok, nil
}

func (m *MemoryBackend) WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DriverLocation, 0)
	for _, loc := range m.positions {
		d := geo.DistanceKm(center, loc.Loc)
		if d <= radiusKm {
			loc.DistanceKm = d
			out = append(out, loc)
		}
	}
	return out, nil
}
