package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ambulance-dispatch/internal/dispatch"
	"github.com/example/ambulance-dispatch/internal/matcher"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/observability"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// AlreadyActiveError means the rider already has a booking in a
// non-terminal state and cannot open another.
type AlreadyActiveError struct {
	UserID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("user %s already has an active booking", e.UserID)
}

// Matcher yields candidate drivers for a pickup point, nearest first.
type Matcher interface {
	FindNearbyDrivers(ctx context.Context, center models.Coord, radiusKm float64) ([]matcher.Candidate, error)
}

// HospitalSelector resolves the destination hospital for a pickup point.
type HospitalSelector interface {
	FindNearest(ctx context.Context, point models.Coord) (models.Hospital, error)
}

// Config carries the matching policy knobs.
type Config struct {
	SearchRadiusKm  float64
	AverageSpeedKmH float64
	// Negotiate offers the booking to each ranked candidate in turn and
	// waits for acceptance instead of assigning the nearest outright.
	Negotiate       bool
	ResponseTimeout time.Duration
}

// Service owns the booking lifecycle: creation, driver assignment or
// negotiation, status transitions, completion and cancellation. All state
// commits for one booking are serialized through a per-booking mutex.
type Service struct {
	store     storage.BookingStore
	matcher   Matcher
	hospitals HospitalSelector
	notifier  dispatch.Notifier
	cfg       Config
	log       *slog.Logger

	locks   keyedLocks
	waiters *responseWaiters
}

func NewService(store storage.BookingStore, m Matcher, h HospitalSelector, n dispatch.Notifier, cfg Config, log *slog.Logger) *Service {
	if cfg.SearchRadiusKm <= 0 {
		cfg.SearchRadiusKm = 5
	}
	if cfg.AverageSpeedKmH <= 0 {
		cfg.AverageSpeedKmH = 40
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 30 * time.Second
	}
	return &Service{
		store:     store,
		matcher:   m,
		hospitals: h,
		notifier:  n,
		cfg:       cfg,
		log:       log,
		waiters:   newResponseWaiters(),
	}
}

// ProcessBooking runs the full matching flow synchronously and returns the
// terminal outcome of the attempt. Validation and hospital resolution
// failures surface as errors before anything is persisted; "no drivers" is
// a normal CANCELLED result, not an error.
func (s *Service) ProcessBooking(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	b, err := s.createBooking(ctx, req)
	if err != nil {
		return models.BookingResult{}, err
	}
	return s.matchAndAssign(ctx, b), nil
}

// SubmitBooking persists the booking and continues matching in the
// background. Used when negotiation is on, since that blocks on driver
// response timeouts and must not hold the request-handling goroutine.
func (s *Service) SubmitBooking(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	b, err := s.createBooking(ctx, req)
	if err != nil {
		return models.BookingResult{}, err
	}
	res := models.BookingResult{
		BookingID:  b.ID,
		Status:     b.Status,
		HospitalID: b.HospitalID,
		Message:    "Processing your request",
	}
	go func() {
		// detached from the request; bounded by the full negotiation window
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.matchAndAssign(bg, b)
	}()
	return res, nil
}

func (s *Service) createBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	if err := req.Pickup.Validate(); err != nil {
		return nil, err
	}
	active, err := s.store.HasActiveForUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, &AlreadyActiveError{UserID: req.UserID}
	}

	// no hospital, no booking: the request is rejected outright
	h, err := s.hospitals.FindNearest(ctx, req.Pickup)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dest := h.Loc
	b := &models.Booking{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Pickup:      req.Pickup,
		Destination: &dest,
		HospitalID:  h.ID,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.retry(func() error { return s.store.SaveBooking(ctx, b) }); err != nil {
		return nil, err
	}
	observability.BookingsCreatedTotal.Inc()
	return b, nil
}

func (s *Service) matchAndAssign(ctx context.Context, b *models.Booking) models.BookingResult {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if err := s.commitTransition(ctx, b, models.StatusSearching, ""); err != nil {
		return s.fail(ctx, b, err)
	}

	var cands []matcher.Candidate
	err := s.retry(func() error {
		var err error
		cands, err = s.matcher.FindNearbyDrivers(ctx, b.Pickup, s.cfg.SearchRadiusKm)
		return err
	})
	if err != nil {
		return s.fail(ctx, b, err)
	}
	if len(cands) == 0 {
		return s.cancelNoDrivers(ctx, b)
	}

	if s.cfg.Negotiate {
		return s.negotiate(ctx, b, cands)
	}
	return s.assignDirect(ctx, b, cands[0])
}

// assignDirect commits the top-ranked candidate without asking.
func (s *Service) assignDirect(ctx context.Context, b *models.Booking, cand matcher.Candidate) models.BookingResult {
	if err := s.commitAssign(ctx, b, cand.DriverID); err != nil {
		var inv *InvalidTransitionError
		if errors.As(err, &inv) {
			// booking was resolved underneath us, report what it became
			return s.resultFor(b, nil)
		}
		return s.fail(ctx, b, err)
	}
	eta := s.etaMinutes(cand.DistanceKm)
	_ = s.notifier.SendToDriver(b.DriverID, models.NewBookingRequestMessage(b))
	_ = s.notifier.SendToRider(b.UserID, models.NewBookingAcceptedMessage(b, eta))
	observability.MatchesTotal.Inc()
	s.log.Info("driver assigned", "booking_id", b.ID, "driver_id", b.DriverID,
		"distance_km", cand.DistanceKm, "eta_minutes", eta)
	return models.BookingResult{
		BookingID:  b.ID,
		Status:     b.Status,
		DriverID:   b.DriverID,
		HospitalID: b.HospitalID,
		ETAMinutes: eta,
	}
}

// negotiate offers the booking to each ranked candidate in turn and waits
// up to ResponseTimeout for acceptance before moving on. The wait is
// cancelled cleanly if the booking is resolved elsewhere in the meantime.
func (s *Service) negotiate(ctx context.Context, b *models.Booking, cands []matcher.Candidate) models.BookingResult {
	ch := s.waiters.register(b.ID)
	defer s.waiters.unregister(b.ID)

	for _, cand := range cands {
		_ = s.notifier.SendToDriver(cand.DriverID, models.NewBookingRequestMessage(b))
		deadline := time.NewTimer(s.cfg.ResponseTimeout)

	wait:
		for {
			select {
			case resp := <-ch:
				if res, done := s.resolved(ctx, b, cands); done {
					deadline.Stop()
					return res
				}
				if !resp.Accepted {
					if resp.DriverID == cand.DriverID {
						break wait // offered driver declined, next candidate
					}
					continue // stray decline from an earlier candidate
				}
				if res, ok := s.tryAcceptance(ctx, b, resp.DriverID, cands); ok {
					deadline.Stop()
					return res
				}
			case <-deadline.C:
				if res, done := s.resolved(ctx, b, cands); done {
					return res
				}
				break wait // timeout is a normal branch, not an error
			case <-ctx.Done():
				deadline.Stop()
				return s.fail(ctx, b, ctx.Err())
			}
		}
		deadline.Stop()
	}
	return s.cancelNoDrivers(ctx, b)
}

// tryAcceptance commits an assignment for an accepting driver, enforcing
// the one-active-booking-per-driver guard.
func (s *Service) tryAcceptance(ctx context.Context, b *models.Booking, driverID string, cands []matcher.Candidate) (models.BookingResult, bool) {
	if busy, err := s.store.HasActiveForDriver(ctx, driverID); err != nil || busy {
		if busy {
			s.log.Warn("accepting driver already has an active booking",
				"booking_id", b.ID, "driver_id", driverID)
		}
		return models.BookingResult{}, false
	}
	if err := s.commitAssign(ctx, b, driverID); err != nil {
		return models.BookingResult{}, false
	}
	eta := s.etaFor(b, cands)
	_ = s.notifier.SendToRider(b.UserID, models.NewBookingAcceptedMessage(b, eta))
	observability.MatchesTotal.Inc()
	s.log.Info("driver accepted booking", "booking_id", b.ID, "driver_id", driverID)
	return models.BookingResult{
		BookingID:  b.ID,
		Status:     b.Status,
		DriverID:   b.DriverID,
		HospitalID: b.HospitalID,
		ETAMinutes: eta,
	}, true
}

// HandleDriverResponse feeds a driver's accept/decline into the matching
// worker waiting on that booking. Responses arriving after the booking is
// resolved, or duplicates, are dropped silently.
func (s *Service) HandleDriverResponse(resp models.DriverResponse) {
	if !s.waiters.deliver(resp) {
		s.log.Debug("ignoring driver response with no waiting booking",
			"booking_id", resp.BookingID, "driver_id", resp.DriverID, "accepted", resp.Accepted)
	}
}

// UpdateStatus applies a caller-requested transition and notifies both
// parties. Guard violations return InvalidTransitionError and leave the
// booking unchanged.
func (s *Service) UpdateStatus(ctx context.Context, bookingID, callerID string, to models.BookingStatus) (*models.Booking, error) {
	mu := s.locks.get(bookingID)
	mu.Lock()
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if err := transition(b, to, callerID); err != nil {
		mu.Unlock()
		return nil, err
	}
	if err := s.retry(func() error { return s.store.UpdateBooking(ctx, b) }); err != nil {
		mu.Unlock()
		return nil, err
	}
	mu.Unlock()

	if to == models.StatusCancelled {
		// wake any matching worker so it can observe the cancellation
		s.waiters.deliver(models.DriverResponse{BookingID: bookingID})
		observability.BookingsCancelledTotal.Inc()
	}
	msg := models.NewStatusUpdateMessage(b)
	_ = s.notifier.SendToRider(b.UserID, msg)
	if b.DriverID != "" {
		_ = s.notifier.SendToDriver(b.DriverID, msg)
	}
	return b, nil
}

// Cancel moves a booking to CANCELLED from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	return s.UpdateStatus(ctx, bookingID, callerID, models.StatusCancelled)
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// UserBookings returns a rider's booking history, newest first.
func (s *Service) UserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	return s.store.ListByUser(ctx, userID)
}

// DriverBookings returns a driver's booking history, newest first.
func (s *Service) DriverBookings(ctx context.Context, driverID string) ([]*models.Booking, error) {
	return s.store.ListByDriver(ctx, driverID)
}

// StartJanitor purges terminal bookings older than retention on a fixed
// schedule until ctx is cancelled.
func (s *Service) StartJanitor(ctx context.Context, every, retention time.Duration) {
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := s.store.PurgeTerminalBefore(ctx, time.Now().Add(-retention))
				if err != nil {
					s.log.Error("booking purge failed", "error", err)
					continue
				}
				if n > 0 {
					s.log.Info("purged old bookings", "count", n)
				}
			}
		}
	}()
}

// --- commit helpers -------------------------------------------------------

// commitTransition reloads the booking under its lock, applies the
// transition and persists it.
func (s *Service) commitTransition(ctx context.Context, b *models.Booking, to models.BookingStatus, callerID string) error {
	mu := s.locks.get(b.ID)
	mu.Lock()
	defer mu.Unlock()
	cur, err := s.getBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *cur
	if err := transition(b, to, callerID); err != nil {
		return err
	}
	return s.retry(func() error { return s.store.UpdateBooking(ctx, b) })
}

// commitAssign sets the driver and moves SEARCHING -> ASSIGNED atomically
// with respect to other transitions on the same booking.
func (s *Service) commitAssign(ctx context.Context, b *models.Booking, driverID string) error {
	mu := s.locks.get(b.ID)
	mu.Lock()
	defer mu.Unlock()
	cur, err := s.getBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *cur
	if b.Status != models.StatusSearching {
		return &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: models.StatusAssigned}
	}
	b.DriverID = driverID
	if err := transition(b, models.StatusAssigned, ""); err != nil {
		return err
	}
	return s.retry(func() error { return s.store.UpdateBooking(ctx, b) })
}

// cancelNoDrivers persists the CANCELLED outcome for the audit trail and
// tells the rider nobody was available.
func (s *Service) cancelNoDrivers(ctx context.Context, b *models.Booking) models.BookingResult {
	if err := s.commitTransition(ctx, b, models.StatusCancelled, ""); err != nil {
		s.log.Error("failed to cancel driverless booking", "booking_id", b.ID, "error", err)
	}
	_ = s.notifier.SendToRider(b.UserID, models.NewNoDriversMessage(b.ID))
	observability.NoDriversTotal.Inc()
	s.log.Info("no drivers available", "booking_id", b.ID)
	return models.BookingResult{
		BookingID:  b.ID,
		Status:     models.StatusCancelled,
		HospitalID: b.HospitalID,
		Message:    "No drivers available",
	}
}

// fail aborts the booking into CANCELLED with an error payload to the
// rider. Used for internal failures, never for the no-drivers outcome.
func (s *Service) fail(ctx context.Context, b *models.Booking, cause error) models.BookingResult {
	s.log.Error("booking failed", "booking_id", b.ID, "error", cause)
	if !b.Status.Terminal() {
		if err := s.commitTransition(ctx, b, models.StatusCancelled, ""); err != nil {
			s.log.Error("failed to cancel errored booking", "booking_id", b.ID, "error", err)
		}
	}
	_ = s.notifier.SendToRider(b.UserID, models.NewBookingErrorMessage(b.ID, "An error occurred processing your booking"))
	return models.BookingResult{
		BookingID:  b.ID,
		Status:     models.StatusCancelled,
		HospitalID: b.HospitalID,
		Message:    "internal error",
	}
}

// resolved reports whether the booking reached ASSIGNED or a terminal
// state outside the negotiation loop.
func (s *Service) resolved(ctx context.Context, b *models.Booking, cands []matcher.Candidate) (models.BookingResult, bool) {
	cur, err := s.getBooking(ctx, b.ID)
	if err != nil {
		return models.BookingResult{}, false
	}
	if cur.Status == models.StatusSearching {
		return models.BookingResult{}, false
	}
	*b = *cur
	return s.resultFor(b, cands), true
}

func (s *Service) resultFor(b *models.Booking, cands []matcher.Candidate) models.BookingResult {
	res := models.BookingResult{
		BookingID:  b.ID,
		Status:     b.Status,
		DriverID:   b.DriverID,
		HospitalID: b.HospitalID,
	}
	if b.DriverID != "" {
		res.ETAMinutes = s.etaFor(b, cands)
	}
	if b.Status == models.StatusCancelled {
		res.Message = "Booking cancelled"
	}
	return res
}

func (s *Service) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b *models.Booking
	err := s.retry(func() error {
		var err error
		b, err = s.store.GetBooking(ctx, id)
		return err
	})
	return b, err
}

// retry runs op once more on transient failure. Matching is latency
// sensitive, so it is a single immediate retry with no backoff.
func (s *Service) retry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return op()
}

func (s *Service) etaMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm / s.cfg.AverageSpeedKmH * 60))
}

// etaFor computes the assigned driver's ETA from its candidate distance.
func (s *Service) etaFor(b *models.Booking, cands []matcher.Candidate) int {
	for _, c := range cands {
		if c.DriverID == b.DriverID {
			return s.etaMinutes(c.DistanceKm)
		}
	}
	return 0
}

// keyedLocks hands out one mutex per booking id so state transitions for a
// booking commit one at a time.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyedLocks) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[id]
	if !ok {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	return l
}
