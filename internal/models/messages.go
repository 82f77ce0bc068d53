package models

// Message is the payload pushed over a live connection to a driver or
// rider. Type discriminates the shape; unused fields are omitted.
type Message struct {
	Type        string        `json:"type"`
	BookingID   string        `json:"booking_id"`
	DriverID    string        `json:"driver_id,omitempty"`
	Status      BookingStatus `json:"status,omitempty"`
	Pickup      *Coord        `json:"pickup,omitempty"`
	Destination *Coord        `json:"destination,omitempty"`
	ETAMinutes  int           `json:"eta_minutes,omitempty"`
	Message     string        `json:"message,omitempty"`
}

const (
	MsgBookingRequest     = "booking_request"
	MsgBookingAccepted    = "booking_accepted"
	MsgBookingStatus      = "booking_status_update"
	MsgNoDriversAvailable = "no_drivers_available"
	MsgBookingError       = "booking_error"
)

// NewBookingRequestMessage is the offer sent to a candidate driver.
func NewBookingRequestMessage(b *Booking) Message {
	pickup := b.Pickup
	return Message{
		Type:        MsgBookingRequest,
		BookingID:   b.ID,
		Pickup:      &pickup,
		Destination: b.Destination,
	}
}

// NewBookingAcceptedMessage confirms an assignment to the rider.
func NewBookingAcceptedMessage(b *Booking, etaMinutes int) Message {
	return Message{
		Type:       MsgBookingAccepted,
		BookingID:  b.ID,
		DriverID:   b.DriverID,
		ETAMinutes: etaMinutes,
	}
}

func NewStatusUpdateMessage(b *Booking) Message {
	return Message{
		Type:      MsgBookingStatus,
		BookingID: b.ID,
		Status:    b.Status,
	}
}

func NewNoDriversMessage(bookingID string) Message {
	return Message{
		Type:      MsgNoDriversAvailable,
		BookingID: bookingID,
		Message:   "No drivers available",
	}
}

func NewBookingErrorMessage(bookingID, msg string) Message {
	return Message{
		Type:      MsgBookingError,
		BookingID: bookingID,
		Message:   msg,
	}
}
