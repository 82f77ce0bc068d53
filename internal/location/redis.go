package location

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ambulance-dispatch/internal/models"
)

// RedisBackend keeps driver positions in a Redis GEO set plus a per-driver
// metadata hash carrying the update timestamp. The Kafka consumer writes
// the same keys, so server and consumer can share one index.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(addr, password, key string) *RedisBackend {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBackend{client: c, key: key}
}

func (r *RedisBackend) Upsert(ctx context.Context, loc models.DriverLocation) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: loc.Loc.Lon, Latitude: loc.Loc.Lat, Name: loc.DriverID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, MetaKey(loc.DriverID), map[string]interface{}{
		"updated": loc.UpdatedAt.Format(time.RFC3339),
	}).Err()
}

func (r *RedisBackend) Get(ctx context.Context, driverID string) (models.DriverLocation, bool, error) {
	pos, err := r.client.GeoPos(ctx, r.key, driverID).Result()
	if err != nil {
		return models.DriverLocation{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return models.DriverLocation{}, false, nil
	}
	loc := models.DriverLocation{
		DriverID: driverID,
		Loc:      models.Coord{Lat: pos[0].Latitude, Lon: pos[0].Longitude},
	}
	if m, err := r.client.HGetAll(ctx, MetaKey(driverID)).Result(); err == nil {
		if v, ok := m["updated"]; ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				loc.UpdatedAt = ts
			}
		}
	}
	return loc, true, nil
}

func (r *RedisBackend) WithinRadius(ctx context.Context, center models.Coord, radiusKm float64) ([]models.DriverLocation, error) {
	res, err := r.client.GeoRadius(ctx, r.key, center.Lon, center.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverLocation, 0, len(res))
	for _, g := range res {
		loc := models.DriverLocation{
			DriverID:   g.Name,
			Loc:        models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistanceKm: g.Dist,
		}
		if m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result(); err == nil {
			if v, ok := m["updated"]; ok {
				if ts, err := time.Parse(time.RFC3339, v); err == nil {
					loc.UpdatedAt = ts
				}
			}
		}
		out = append(out, loc)
	}
	return out, nil
}

// MetaKey is the hash holding per-driver metadata next to the geo set.
func MetaKey(driverID string) string { return "ambulance:driver:meta:" + driverID }
