package booking

import (
	"fmt"
	"time"

	"github.com/example/ambulance-dispatch/internal/models"
)

// InvalidTransitionError reports a state-machine guard violation. The
// booking is left unchanged.
type InvalidTransitionError struct {
	BookingID string
	From      models.BookingStatus
	To        models.BookingStatus
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("booking %s: invalid transition %s -> %s", e.BookingID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// transitions is the canonical lifecycle. CANCELLED is reachable from any
// non-terminal state.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:    {models.StatusSearching, models.StatusCancelled},
	models.StatusSearching:  {models.StatusAssigned, models.StatusCancelled},
	models.StatusAssigned:   {models.StatusArrived, models.StatusCancelled},
	models.StatusArrived:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

// driverOnly lists targets only the assigned driver may request.
var driverOnly = map[models.BookingStatus]bool{
	models.StatusArrived:    true,
	models.StatusInProgress: true,
	models.StatusCompleted:  true,
}

func canTransition(from, to models.BookingStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// transition applies a status change after validating the transition table
// and the caller guard. callerID is ignored for transitions either party
// may request.
func transition(b *models.Booking, to models.BookingStatus, callerID string) error {
	if !canTransition(b.Status, to) {
		return &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: to}
	}
	if driverOnly[to] && callerID != b.DriverID {
		return &InvalidTransitionError{
			BookingID: b.ID, From: b.Status, To: to,
			Reason: "caller is not the assigned driver",
		}
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}
