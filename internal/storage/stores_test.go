package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
)

func booking(id, userID, driverID string, status models.BookingStatus, updated time.Time) *models.Booking {
	return &models.Booking{
		ID: id, UserID: userID, DriverID: driverID,
		Pickup: models.Coord{Lat: 12.9, Lon: 77.6},
		Status: status, CreatedAt: updated, UpdatedAt: updated,
	}
}

func TestMemoryStoreGetUnknownBooking(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.GetBooking(context.Background(), "nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestMemoryStoreActiveGuards(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := m.SaveBooking(ctx, booking("b1", "u1", "d1", models.StatusAssigned, now)); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveBooking(ctx, booking("b2", "u2", "d2", models.StatusCompleted, now)); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		user string
		want bool
	}{{"u1", true}, {"u2", false}, {"u3", false}} {
		got, err := m.HasActiveForUser(ctx, tc.user)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("HasActiveForUser(%s) = %v, want %v", tc.user, got, tc.want)
		}
	}

	active, err := m.HasActiveForDriver(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Fatal("d1 holds an ASSIGNED booking and must count as busy")
	}
	if active, _ := m.HasActiveForDriver(ctx, "d2"); active {
		t.Fatal("a COMPLETED booking must not count as busy")
	}
}

func TestMemoryStorePurgeTerminalBefore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now()

	m.SaveBooking(ctx, booking("old-done", "u1", "d1", models.StatusCompleted, old))
	m.SaveBooking(ctx, booking("old-live", "u2", "d2", models.StatusInProgress, old))
	m.SaveBooking(ctx, booking("new-done", "u3", "d3", models.StatusCancelled, recent))

	n, err := m.PurgeTerminalBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged booking, got %d", n)
	}
	if _, err := m.GetBooking(ctx, "old-done"); err == nil {
		t.Fatal("terminal booking past retention must be gone")
	}
	// non-terminal bookings survive no matter how old
	if _, err := m.GetBooking(ctx, "old-live"); err != nil {
		t.Fatal("active booking must never be purged")
	}
	if _, err := m.GetBooking(ctx, "new-done"); err != nil {
		t.Fatal("recent terminal booking must be kept")
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	m.SaveBooking(ctx, booking("b1", "u1", "d1", models.StatusCompleted, base))
	m.SaveBooking(ctx, booking("b2", "u1", "d1", models.StatusCancelled, base.Add(time.Minute)))
	m.SaveBooking(ctx, booking("b3", "u1", "d2", models.StatusAssigned, base.Add(2*time.Minute)))

	byUser, err := m.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 3 || byUser[0].ID != "b3" {
		t.Fatalf("expected newest-first history for u1, got %+v", ids(byUser))
	}

	byDriver, err := m.ListByDriver(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byDriver) != 2 || byDriver[0].ID != "b2" {
		t.Fatalf("expected newest-first history for d1, got %+v", ids(byDriver))
	}
}

func ids(bs []*models.Booking) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}
