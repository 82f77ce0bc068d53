package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/observability"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// SuspiciousMovementError flags a position jump larger than the configured
// threshold inside the minimum update interval.
type SuspiciousMovementError struct {
	DriverID string
	JumpKm   float64
}

func (e *SuspiciousMovementError) Error() string {
	return fmt.Sprintf("suspicious movement for driver %s: %.1fkm jump", e.DriverID, e.JumpKm)
}

// Backend holds the live per-driver positions. The in-process index and the
// Redis geo index both satisfy it.
type Backend interface {
	Upsert(ctx context.Context, loc models.DriverLocation) error
	Get(ctx context.Context, driverID string) (models.DriverLocation, bool, error)
	// WithinRadius returns every driver within radiusKm of center, each
	// annotated with its distance. Ordering is not part of the contract.
	WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error)
}

// Options carries the store's policy knobs. Zero values disable a policy.
type Options struct {
	// SuspiciousDistanceKm is the jump size treated as suspicious when it
	// happens within MinUpdateInterval of the previous update.
	SuspiciousDistanceKm float64
	MinUpdateInterval    time.Duration
	// RejectSuspicious rejects suspicious updates; otherwise they are
	// accepted and logged.
	RejectSuspicious bool
	// StaleAfter excludes drivers whose last update is older than this from
	// radius queries when ExcludeStale is set.
	StaleAfter   time.Duration
	ExcludeStale bool
	CacheTTL     time.Duration
}

// Store owns current driver positions: drivers write, matching reads by
// radius. Radius queries go through a short-TTL cache.
type Store struct {
	backend Backend
	drivers storage.DriverStore
	opts    Options
	cache   *radiusCache
	log     *slog.Logger
}

func NewStore(backend Backend, drivers storage.DriverStore, opts Options, log *slog.Logger) *Store {
	return &Store{
		backend: backend,
		drivers: drivers,
		opts:    opts,
		cache:   newRadiusCache(opts.CacheTTL),
		log:     log,
	}
}

// Update upserts the driver's current position. The driver must exist, the
// coordinate must be valid, and implausible jumps are rejected or logged
// depending on policy.
func (s *Store) Update(ctx context.Context, driverID string, c models.Coord) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := s.drivers.GetDriver(ctx, driverID); err != nil {
		return err
	}

	prev, ok, err := s.backend.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if ok && s.opts.SuspiciousDistanceKm > 0 && time.Since(prev.UpdatedAt) < s.opts.MinUpdateInterval {
		if jump := geo.DistanceKm(prev.Loc, c); jump > s.opts.SuspiciousDistanceKm {
			observability.SuspiciousUpdatesTotal.Inc()
			if s.opts.RejectSuspicious {
				return &SuspiciousMovementError{DriverID: driverID, JumpKm: jump}
			}
			s.log.Warn("accepting suspicious driver movement",
				"driver_id", driverID, "jump_km", jump)
		}
	}

	loc := models.DriverLocation{DriverID: driverID, Loc: c, UpdatedAt: time.Now().UTC()}
	if err := s.backend.Upsert(ctx, loc); err != nil {
		return err
	}
	observability.LocationUpdatesTotal.Inc()
	return nil
}

// WithinRadius returns drivers within radiusKm of center, annotated with
// distance. Results may be served from cache up to the configured TTL and
// carry no ordering guarantee; ranking is the matcher's job.
func (s *Store) WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	key := cacheKey(center, radiusKm)
	if hit, ok := s.cache.get(key); ok {
		observability.GeoCacheHitsTotal.Inc()
		return hit, nil
	}

	locs, err := s.backend.WithinRadius(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}
	out := locs[:0]
	for _, l := range locs {
		if s.opts.ExcludeStale && s.opts.StaleAfter > 0 && time.Since(l.UpdatedAt) > s.opts.StaleAfter {
			continue
		}
		if l.DistanceKm == 0 {
			l.DistanceKm = geo.DistanceKm(center, l.Loc)
		}
		out = append(out, l)
	}
	s.cache.set(key, out)
	return out, nil
}

// ClearCache drops all cached radius-query results.
func (s *Store) ClearCache() { s.cache.clear() }

// StartCacheSweeper expires cache entries on a fixed schedule until ctx is
// cancelled.
func (s *Store) StartCacheSweeper(ctx context.Context, every time.Duration) {
	go s.cache.sweep(ctx, every)
}
