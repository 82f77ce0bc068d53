package booking

import (
	"errors"
	"testing"

	"github.com/example/ambulance-dispatch/internal/models"
)

func TestAssignedAllowsOnlyArrivedOrCancelled(t *testing.T) {
	for _, to := range []models.BookingStatus{models.StatusArrived, models.StatusCancelled} {
		b := &models.Booking{ID: "b1", DriverID: "d1", Status: models.StatusAssigned}
		if err := transition(b, to, "d1"); err != nil {
			t.Fatalf("ASSIGNED -> %s should be allowed: %v", to, err)
		}
	}
	for _, to := range []models.BookingStatus{models.StatusCompleted, models.StatusInProgress, models.StatusPending, models.StatusSearching} {
		b := &models.Booking{ID: "b1", DriverID: "d1", Status: models.StatusAssigned}
		err := transition(b, to, "d1")
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("ASSIGNED -> %s should fail with InvalidTransitionError, got %v", to, err)
		}
		if b.Status != models.StatusAssigned {
			t.Fatalf("failed transition must leave booking unchanged, now %s", b.Status)
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, from := range []models.BookingStatus{models.StatusCompleted, models.StatusCancelled} {
		b := &models.Booking{ID: "b1", Status: from}
		if err := transition(b, models.StatusCancelled, ""); err == nil {
			t.Fatalf("%s must be terminal", from)
		}
	}
}

func TestCancelledReachableFromAnyNonTerminal(t *testing.T) {
	for _, from := range []models.BookingStatus{
		models.StatusPending, models.StatusSearching, models.StatusAssigned,
		models.StatusArrived, models.StatusInProgress,
	} {
		b := &models.Booking{ID: "b1", Status: from}
		if err := transition(b, models.StatusCancelled, "anyone"); err != nil {
			t.Fatalf("%s -> CANCELLED should be allowed: %v", from, err)
		}
	}
}

func TestDriverOnlyTransitionsRequireAssignedDriver(t *testing.T) {
	cases := []struct {
		from, to models.BookingStatus
	}{
		{models.StatusAssigned, models.StatusArrived},
		{models.StatusArrived, models.StatusInProgress},
		{models.StatusInProgress, models.StatusCompleted},
	}
	for _, c := range cases {
		b := &models.Booking{ID: "b1", DriverID: "d1", Status: c.from}
		err := transition(b, c.to, "someone-else")
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("%s -> %s by non-driver should fail, got %v", c.from, c.to, err)
		}
		if err := transition(b, c.to, "d1"); err != nil {
			t.Fatalf("%s -> %s by the assigned driver should pass: %v", c.from, c.to, err)
		}
	}
}

func TestTransitionStampsUpdatedAt(t *testing.T) {
	b := &models.Booking{ID: "b1", Status: models.StatusPending}
	was := b.UpdatedAt
	if err := transition(b, models.StatusSearching, ""); err != nil {
		t.Fatal(err)
	}
	if !b.UpdatedAt.After(was) {
		t.Fatal("UpdatedAt not stamped")
	}
}
