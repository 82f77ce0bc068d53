package matcher

import (
	"context"
	"sort"
	"testing"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
)

type fakeLocations struct{ locs []models.DriverLocation }

func (f *fakeLocations) WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error) {
	// mimic the store contract: in-radius only, unordered, distance annotated
	out := make([]models.DriverLocation, 0)
	for _, l := range f.locs {
		l.DistanceKm = geo.DistanceKm(center, l.Loc)
		if l.DistanceKm <= radiusKm {
			out = append(out, l)
		}
	}
	return out, nil
}

func loc(id string, lat, lon float64) models.DriverLocation {
	return models.DriverLocation{DriverID: id, Loc: models.Coord{Lat: lat, Lon: lon}}
}

func TestFindNearbyDriversSortedAscending(t *testing.T) {
	f := &fakeLocations{locs: []models.DriverLocation{
		loc("far", 0.04, 0),
		loc("near", 0.005, 0),
		loc("mid", 0.02, 0),
	}}
	m := New(f)
	cands, err := m.FindNearbyDrivers(context.Background(), models.Coord{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	if !sort.SliceIsSorted(cands, func(i, j int) bool { return cands[i].DistanceKm < cands[j].DistanceKm }) {
		t.Fatalf("candidates not sorted by distance: %v", cands)
	}
	if cands[0].DriverID != "near" || cands[2].DriverID != "far" {
		t.Fatalf("unexpected order: %v", cands)
	}
}

func TestFindNearbyDriversTieBreakByID(t *testing.T) {
	f := &fakeLocations{locs: []models.DriverLocation{
		loc("b", 0.01, 0),
		loc("a", 0.01, 0),
	}}
	m := New(f)
	cands, err := m.FindNearbyDrivers(context.Background(), models.Coord{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if cands[0].DriverID != "a" || cands[1].DriverID != "b" {
		t.Fatalf("tie not broken by driver id: %v", cands)
	}
}

func TestFindNearbyDriversEmptyIsNotAnError(t *testing.T) {
	m := New(&fakeLocations{})
	cands, err := m.FindNearbyDrivers(context.Background(), models.Coord{}, 5)
	if err != nil {
		t.Fatalf("empty result must not be an error, got %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %v", cands)
	}
}

func TestFindNearbyDriversSubsetForSmallerRadius(t *testing.T) {
	f := &fakeLocations{locs: []models.DriverLocation{
		loc("d1", 0.005, 0),
		loc("d2", 0.02, 0),
		loc("d3", 0.08, 0),
	}}
	m := New(f)
	ctx := context.Background()
	center := models.Coord{}
	small, _ := m.FindNearbyDrivers(ctx, center, 3)
	large, _ := m.FindNearbyDrivers(ctx, center, 10)
	for _, c := range small {
		found := false
		for _, l := range large {
			if l.DriverID == c.DriverID {
				found = true
			}
		}
		if !found {
			t.Fatalf("candidate %s missing from larger radius", c.DriverID)
		}
	}
	if len(small) >= len(large) {
		t.Fatalf("expected strictly fewer candidates in smaller radius: %d vs %d", len(small), len(large))
	}
}
