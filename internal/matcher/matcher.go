package matcher

import (
	"context"
	"sort"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
)

// Locations is the slice of the location store the matcher needs.
type Locations interface {
	WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error)
}

// Candidate is a driver eligible for assignment, annotated with its
// distance from the pickup point.
type Candidate struct {
	DriverID   string
	Loc        models.Coord
	DistanceKm float64
}

type Matcher struct {
	Locations Locations
}

func New(locations Locations) *Matcher {
	return &Matcher{Locations: locations}
}

// FindNearbyDrivers returns candidates within radiusKm of center, sorted
// ascending by distance with driver id as the deterministic tie break. An
// empty result is a normal outcome, not an error.
func (m *Matcher) FindNearbyDrivers(ctx context.Context, center models.Coord, radiusKm float64) ([]Candidate, error) {
	locs, err := m.Locations.WithinRadius(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	cands := make([]Candidate, 0, len(locs))
	for _, l := range locs {
		d := l.DistanceKm
		if d == 0 {
			d = geo.DistanceKm(center, l.Loc)
		}
		if d > radiusKm {
			continue
		}
		cands = append(cands, Candidate{DriverID: l.DriverID, Loc: l.Loc, DistanceKm: d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].DistanceKm != cands[j].DistanceKm {
			return cands[i].DistanceKm < cands[j].DistanceKm
		}
		return cands[i].DriverID < cands[j].DriverID
	})
	return cands, nil
}
