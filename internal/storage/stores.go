package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
)

// NotFoundError reports an absent entity. Callers match it with errors.As.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// BookingStore defines persistence operations for bookings. Implementations
// are treated as fallible remote calls; the booking service retries once.
type BookingStore interface {
	SaveBooking(ctx context.Context, b *models.Booking) error
	UpdateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListByDriver(ctx context.Context, driverID string) ([]*models.Booking, error)
	HasActiveForUser(ctx context.Context, userID string) (bool, error)
	HasActiveForDriver(ctx context.Context, driverID string) (bool, error)
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// DriverStore resolves driver identities. Profile CRUD lives elsewhere.
type DriverStore interface {
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
}

// HospitalStore lists registered hospitals. Registration lives elsewhere.
type HospitalStore interface {
	FindAllHospitals(ctx context.Context) ([]models.Hospital, error)
}

// MemoryStore keeps everything in process. It backs local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[string]*models.Booking
	drivers   map[string]*models.Driver
	hospitals []models.Hospital
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		drivers:  make(map[string]*models.Driver),
	}
}

func (m *MemoryStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return &NotFoundError{Entity: "booking", ID: b.ID}
	}
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, &NotFoundError{Entity: "booking", ID: id}
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	return m.list(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (m *MemoryStore) ListByDriver(ctx context.Context, driverID string) ([]*models.Booking, error) {
	return m.list(func(b *models.Booking) bool { return b.DriverID == driverID }), nil
}

func (m *MemoryStore) list(keep func(*models.Booking) bool) []*models.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Booking, 0)
	for _, b := range m.bookings {
		if keep(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) HasActiveForUser(ctx context.Context, userID string) (bool, error) {
	return m.hasActive(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (m *MemoryStore) HasActiveForDriver(ctx context.Context, driverID string) (bool, error) {
	return m.hasActive(func(b *models.Booking) bool { return b.DriverID == driverID }), nil
}

func (m *MemoryStore) hasActive(match func(*models.Booking) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bookings {
		if match(b) && !b.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *MemoryStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, b := range m.bookings {
		if b.Status.Terminal() && b.CreatedAt.Before(cutoff) {
			delete(m.bookings, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, &NotFoundError{Entity: "driver", ID: id}
	}
	cp := *d
	return &cp, nil
}

// PutDriver seeds a driver record, used by local runs and tests.
func (m *MemoryStore) PutDriver(d models.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = &d
}

func (m *MemoryStore) FindAllHospitals(ctx context.Context) ([]models.Hospital, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Hospital, len(m.hospitals))
	copy(out, m.hospitals)
	return out, nil
}

// PutHospital seeds a hospital record, used by local runs and tests.
func (m *MemoryStore) PutHospital(h models.Hospital) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hospitals = append(m.hospitals, h)
}
