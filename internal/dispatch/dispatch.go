package dispatch

import (
	"github.com/example/ambulance-dispatch/internal/models"
)

// Notifier delivers a typed message to a named recipient's live
// connection. Delivery is fire-and-forget from the booking core's point of
// view: failures are logged by the transport and never fail a booking.
type Notifier interface {
	SendToDriver(driverID string, msg models.Message) error
	SendToRider(riderID string, msg models.Message) error
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no live session" }
