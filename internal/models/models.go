package models

import (
	"fmt"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate is a real point on the globe.
func (c Coord) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return &InvalidLocationError{Lat: c.Lat, Lon: c.Lon}
	}
	return nil
}

type InvalidLocationError struct {
	Lat float64
	Lon float64
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location (%.6f, %.6f)", e.Lat, e.Lon)
}

// Driver is an ambulance driver known to the platform. Registration and
// verification live in an external profile service; the core only needs
// identity and duty status.
type Driver struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name,omitempty"`
	VehicleReg string `json:"vehicle_reg,omitempty"`
	Online     bool   `json:"online"`
}

// DriverLocation is the single live position record kept per driver,
// overwritten on every update. Position history is an external audit
// concern, not ours.
type DriverLocation struct {
	DriverID   string    `json:"driver_id"`
	Loc        Coord     `json:"loc"`
	DistanceKm float64   `json:"distance_km,omitempty"` // filled in by radius queries
	UpdatedAt  time.Time `json:"updated_at"`
}

type Hospital struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Loc           Coord  `json:"loc"`
	TotalBeds     int    `json:"total_beds"`
	EmergencyBeds int    `json:"emergency_beds"`
}

type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusSearching  BookingStatus = "SEARCHING"
	StatusAssigned   BookingStatus = "ASSIGNED"
	StatusArrived    BookingStatus = "ARRIVED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are permitted.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Booking struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	DriverID    string        `json:"driver_id,omitempty"` // empty until assigned
	Pickup      Coord         `json:"pickup"`
	Destination *Coord        `json:"destination,omitempty"` // set once a hospital is resolved
	HospitalID  string        `json:"hospital_id,omitempty"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type BookingRequest struct {
	UserID string `json:"user_id"`
	Pickup Coord  `json:"pickup"`
}

// DriverResponse is a driver's answer to an offered booking.
type DriverResponse struct {
	BookingID string `json:"booking_id"`
	DriverID  string `json:"driver_id"`
	Accepted  bool   `json:"accepted"`
}

// BookingResult is what the rider-facing entry point returns. Terminal
// failures surface here as a status plus message, never a bare error.
type BookingResult struct {
	BookingID  string        `json:"booking_id"`
	Status     BookingStatus `json:"status"`
	DriverID   string        `json:"driver_id,omitempty"`
	HospitalID string        `json:"hospital_id,omitempty"`
	ETAMinutes int           `json:"eta_minutes,omitempty"`
	Message    string        `json:"message,omitempty"`
}
