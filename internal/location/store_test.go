package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, opts Options, driverIDs ...string) (*Store, *MemoryBackend) {
	t.Helper()
	drivers := storage.NewMemoryStore()
	for _, id := range driverIDs {
		drivers.PutDriver(models.Driver{ID: id, Online: true})
	}
	backend := NewMemoryBackend()
	return NewStore(backend, drivers, opts, testLogger()), backend
}

func TestUpdateUnknownDriver(t *testing.T) {
	s, _ := newTestStore(t, Options{}, "d1")
	err := s.Update(context.Background(), "ghost", models.Coord{Lat: 1, Lon: 1})
	var nf *storage.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateRejectsInvalidCoordinate(t *testing.T) {
	s, _ := newTestStore(t, Options{}, "d1")
	err := s.Update(context.Background(), "d1", models.Coord{Lat: 91, Lon: 0})
	var inv *models.InvalidLocationError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvalidLocationError, got %v", err)
	}
}

func TestUpdateIdempotentExceptTimestamp(t *testing.T) {
	s, backend := newTestStore(t, Options{}, "d1")
	ctx := context.Background()
	c := models.Coord{Lat: 12.90, Lon: 77.58}
	if err := s.Update(ctx, "d1", c); err != nil {
		t.Fatal(err)
	}
	first, _, _ := backend.Get(ctx, "d1")
	time.Sleep(5 * time.Millisecond)
	if err := s.Update(ctx, "d1", c); err != nil {
		t.Fatal(err)
	}
	second, _, _ := backend.Get(ctx, "d1")
	if second.Loc != first.Loc {
		t.Fatalf("location changed: %v -> %v", first.Loc, second.Loc)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("timestamp not advanced")
	}
}

func TestSuspiciousMovementRejected(t *testing.T) {
	opts := Options{SuspiciousDistanceKm: 100, MinUpdateInterval: time.Minute, RejectSuspicious: true}
	s, backend := newTestStore(t, opts, "d1")
	ctx := context.Background()
	if err := s.Update(ctx, "d1", models.Coord{Lat: 12.90, Lon: 77.58}); err != nil {
		t.Fatal(err)
	}
	// ~550km away, seconds after the previous update
	err := s.Update(ctx, "d1", models.Coord{Lat: 17.38, Lon: 78.48})
	var sm *SuspiciousMovementError
	if !errors.As(err, &sm) {
		t.Fatalf("expected SuspiciousMovementError, got %v", err)
	}
	loc, _, _ := backend.Get(ctx, "d1")
	if loc.Loc.Lat != 12.90 {
		t.Fatalf("rejected update must not change the stored position, got %v", loc.Loc)
	}
}

func TestSuspiciousMovementAcceptedWithWarning(t *testing.T) {
	opts := Options{SuspiciousDistanceKm: 100, MinUpdateInterval: time.Minute, RejectSuspicious: false}
	s, backend := newTestStore(t, opts, "d1")
	ctx := context.Background()
	if err := s.Update(ctx, "d1", models.Coord{Lat: 12.90, Lon: 77.58}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "d1", models.Coord{Lat: 17.38, Lon: 78.48}); err != nil {
		t.Fatalf("accept-with-warning policy must not reject, got %v", err)
	}
	loc, _, _ := backend.Get(ctx, "d1")
	if loc.Loc.Lat != 17.38 {
		t.Fatalf("update not applied, got %v", loc.Loc)
	}
}

func TestWithinRadiusAnnotatesDistance(t *testing.T) {
	s, _ := newTestStore(t, Options{}, "d1")
	ctx := context.Background()
	if err := s.Update(ctx, "d1", models.Coord{Lat: 12.90, Lon: 77.58}); err != nil {
		t.Fatal(err)
	}
	got, err := s.WithinRadius(ctx, models.Coord{Lat: 12.91, Lon: 77.59}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 driver, got %d", len(got))
	}
	if got[0].DistanceKm < 1.4 || got[0].DistanceKm > 1.6 {
		t.Fatalf("expected ~1.5km, got %f", got[0].DistanceKm)
	}
}

func TestWithinRadiusMonotonic(t *testing.T) {
	s, _ := newTestStore(t, Options{}, "d1", "d2", "d3")
	ctx := context.Background()
	center := models.Coord{Lat: 0, Lon: 0}
	s.Update(ctx, "d1", models.Coord{Lat: 0.01, Lon: 0})  // ~1.1km
	s.Update(ctx, "d2", models.Coord{Lat: 0.05, Lon: 0})  // ~5.6km
	s.Update(ctx, "d3", models.Coord{Lat: 0.002, Lon: 0}) // ~0.2km

	small, _ := s.WithinRadius(ctx, center, 2)
	large, _ := s.WithinRadius(ctx, center, 10)
	if len(small) >= len(large) && len(small) != len(large) {
		t.Fatalf("small radius returned more drivers: %d vs %d", len(small), len(large))
	}
	for _, a := range small {
		found := false
		for _, b := range large {
			if a.DriverID == b.DriverID {
				found = true
			}
		}
		if !found {
			t.Fatalf("driver %s in r=2 result missing from r=10 result", a.DriverID)
		}
	}
}

func TestWithinRadiusExcludesStale(t *testing.T) {
	opts := Options{StaleAfter: 5 * time.Minute, ExcludeStale: true}
	drivers := storage.NewMemoryStore()
	drivers.PutDriver(models.Driver{ID: "fresh"})
	drivers.PutDriver(models.Driver{ID: "stale"})
	backend := NewMemoryBackend()
	s := NewStore(backend, drivers, opts, testLogger())
	ctx := context.Background()

	backend.Upsert(ctx, models.DriverLocation{DriverID: "fresh", Loc: models.Coord{Lat: 0.01, Lon: 0}, UpdatedAt: time.Now()})
	backend.Upsert(ctx, models.DriverLocation{DriverID: "stale", Loc: models.Coord{Lat: 0.01, Lon: 0}, UpdatedAt: time.Now().Add(-time.Hour)})

	got, err := s.WithinRadius(ctx, models.Coord{Lat: 0, Lon: 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DriverID != "fresh" {
		t.Fatalf("expected only the fresh driver, got %v", got)
	}
}

func TestRadiusCacheServesAndClears(t *testing.T) {
	opts := Options{CacheTTL: time.Minute}
	s, backend := newTestStore(t, opts, "d1", "d2")
	ctx := context.Background()
	center := models.Coord{Lat: 0, Lon: 0}

	s.Update(ctx, "d1", models.Coord{Lat: 0.01, Lon: 0})
	first, _ := s.WithinRadius(ctx, center, 5)
	if len(first) != 1 {
		t.Fatalf("expected 1 driver, got %d", len(first))
	}

	// new driver appears; cached result is served until invalidation
	backend.Upsert(ctx, models.DriverLocation{DriverID: "d2", Loc: models.Coord{Lat: 0.02, Lon: 0}, UpdatedAt: time.Now()})
	cached, _ := s.WithinRadius(ctx, center, 5)
	if len(cached) != 1 {
		t.Fatalf("expected cached result of 1 driver, got %d", len(cached))
	}

	s.ClearCache()
	fresh, _ := s.WithinRadius(ctx, center, 5)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 drivers after cache clear, got %d", len(fresh))
	}
}
