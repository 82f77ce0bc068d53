package hospital

import (
	"context"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// NoHospitalAvailableError means the hospital registry is empty: there is
// nowhere to route a patient and no booking should be created.
type NoHospitalAvailableError struct{}

func (e *NoHospitalAvailableError) Error() string { return "no hospital available" }

// Selector picks the destination hospital for a pickup point.
type Selector struct {
	Hospitals storage.HospitalStore
}

func New(hospitals storage.HospitalStore) *Selector {
	return &Selector{Hospitals: hospitals}
}

// FindNearest returns the globally nearest registered hospital. Unlike
// driver search there is no radius cutoff: the patient goes somewhere.
func (s *Selector) FindNearest(ctx context.Context, point models.Coord) (models.Hospital, error) {
	all, err := s.Hospitals.FindAllHospitals(ctx)
	if err != nil {
		return models.Hospital{}, err
	}
	if len(all) == 0 {
		return models.Hospital{}, &NoHospitalAvailableError{}
	}
	best := all[0]
	bestDist := geo.DistanceKm(point, best.Loc)
	for _, h := range all[1:] {
		if d := geo.DistanceKm(point, h.Loc); d < bestDist {
			best, bestDist = h, d
		}
	}
	return best, nil
}
