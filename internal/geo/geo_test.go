package geo

import (
	"math"
	"testing"

	"github.com/example/ambulance-dispatch/internal/models"
)

const tolKm = 1e-6

func TestDistanceZeroForIdenticalPoints(t *testing.T) {
	pts := []models.Coord{
		{Lat: 0, Lon: 0},
		{Lat: 12.9716, Lon: 77.5946},
		{Lat: -89.9, Lon: 179.9},
	}
	for _, p := range pts {
		if d := DistanceKm(p, p); d != 0 {
			t.Fatalf("DistanceKm(%v,%v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coord{Lat: 12.90, Lon: 77.58}
	b := models.Coord{Lat: 13.05, Lon: 80.25}
	if diff := math.Abs(DistanceKm(a, b) - DistanceKm(b, a)); diff > tolKm {
		t.Fatalf("asymmetry %g exceeds tolerance", diff)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// driver at (12.90,77.58), pickup at (12.91,77.59): roughly 1.5km apart
	a := models.Coord{Lat: 12.90, Lon: 77.58}
	b := models.Coord{Lat: 12.91, Lon: 77.59}
	d := DistanceKm(a, b)
	if d < 1.4 || d > 1.6 {
		t.Fatalf("expected ~1.5km, got %f", d)
	}

	// one degree of latitude on the equator
	eq := DistanceKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 0})
	if eq < 111 || eq > 112 {
		t.Fatalf("expected ~111.2km per degree latitude, got %f", eq)
	}
}
