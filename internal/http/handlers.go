package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ambulance-dispatch/internal/booking"
	"github.com/example/ambulance-dispatch/internal/config"
	"github.com/example/ambulance-dispatch/internal/dispatch"
	"github.com/example/ambulance-dispatch/internal/hospital"
	"github.com/example/ambulance-dispatch/internal/ingest"
	"github.com/example/ambulance-dispatch/internal/location"
	"github.com/example/ambulance-dispatch/internal/matcher"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/observability"
	"github.com/example/ambulance-dispatch/internal/storage"
)

type Server struct {
	Bookings  *booking.Service
	Locations *location.Store
	Kafka     *ingest.KafkaProducer
	WSReg     *dispatch.WSRegistry

	negotiate bool
	logger    *slog.Logger
	mux       *mux.Router
}

// NewServer wires the full stack from config: Postgres or memory
// persistence, Redis or in-process geo index, optional Kafka ingest.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	store := storage.NewMemoryStore()
	var bookings storage.BookingStore = store
	var drivers storage.DriverStore = store
	var hospitals storage.HospitalStore = store
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		bookings, drivers, hospitals = pg, pg, pg
	}

	var backend location.Backend
	if cfg.RedisAddr != "" {
		backend = location.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		backend = location.NewMemoryBackend()
	}
	locs := location.NewStore(backend, drivers, location.Options{
		SuspiciousDistanceKm: cfg.SuspiciousJumpKm,
		MinUpdateInterval:    cfg.MinLocationInterval,
		RejectSuspicious:     cfg.RejectSuspicious,
		StaleAfter:           cfg.StaleLocationAfter,
		ExcludeStale:         cfg.ExcludeStale,
		CacheTTL:             cfg.GeoCacheTTL,
	}, logger)

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	svc := booking.NewService(bookings, matcher.New(locs), hospital.New(hospitals), wsreg, booking.Config{
		SearchRadiusKm:  cfg.SearchRadiusKm,
		AverageSpeedKmH: cfg.AverageSpeedKmH,
		Negotiate:       cfg.NegotiationEnabled,
		ResponseTimeout: cfg.DriverRespTimeout,
	}, logger)

	s := &Server{
		Bookings:  svc,
		Locations: locs,
		Kafka:     kp,
		WSReg:     wsreg,
		negotiate: cfg.NegotiationEnabled,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/bookings/request", s.handleBookingRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/driver/response", s.handleDriverResponse).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}/status", s.handleStatusUpdate).Methods("PUT")
	s.mux.HandleFunc("/api/v1/bookings/{booking_id}", s.handleGetBooking).Methods("GET")
	s.mux.HandleFunc("/api/v1/users/{user_id}/bookings", s.handleUserBookings).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{driver_id}/bookings", s.handleDriverBookings).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/rider/{rider_id}", s.handleRiderWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleBookingRequest(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	var res models.BookingResult
	var err error
	if s.negotiate {
		// negotiation blocks on driver-response timeouts, run it detached
		res, err = s.Bookings.SubmitBooking(r.Context(), req)
	} else {
		res, err = s.Bookings.ProcessBooking(r.Context(), req)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == models.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) handleDriverResponse(w http.ResponseWriter, r *http.Request) {
	var resp models.DriverResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if resp.BookingID == "" || resp.DriverID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "booking_id and driver_id are required")
		return
	}
	s.Bookings.HandleDriverResponse(resp)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	var body struct {
		Status   models.BookingStatus `json:"status"`
		CallerID string               `json:"caller_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	b, err := s.Bookings.UpdateStatus(r.Context(), bookingID, body.CallerID, body.Status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.GetBooking(r.Context(), mux.Vars(r)["booking_id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.Bookings.UserBookings(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDriverBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.Bookings.DriverBookings(r.Context(), mux.Vars(r)["driver_id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var upd struct {
		DriverID string  `json:"driver_id"`
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c := models.Coord{Lat: upd.Lat, Lon: upd.Lon}
	if err := s.Locations.Update(r.Context(), upd.DriverID, c); err != nil {
		s.writeDomainError(w, err)
		return
	}
	// fan out to the ingest pipeline so the shared Redis index converges
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(models.DriverLocation{DriverID: upd.DriverID, Loc: c}); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", upd.DriverID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.WSReg.AddDriver(id, conn)
	observability.DriversOnline.Inc()
	go func() {
		defer func() {
			s.WSReg.RemoveDriver(id)
			observability.DriversOnline.Dec()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleRiderWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.WSReg.AddRider(id, conn)
	go func() {
		defer func() {
			s.WSReg.RemoveRider(id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeDomainError maps the error taxonomy onto structured HTTP results so
// boundary callers never see a bare error.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound   *storage.NotFoundError
		invalidLoc *models.InvalidLocationError
		invalidTr  *booking.InvalidTransitionError
		noHospital *hospital.NoHospitalAvailableError
		suspicious *location.SuspiciousMovementError
		active     *booking.AlreadyActiveError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &invalidLoc):
		writeError(w, http.StatusBadRequest, "invalid_location", err.Error())
	case errors.As(err, &invalidTr):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.As(err, &noHospital):
		writeError(w, http.StatusServiceUnavailable, "no_hospital_available", err.Error())
	case errors.As(err, &suspicious):
		writeError(w, http.StatusUnprocessableEntity, "suspicious_movement", err.Error())
	case errors.As(err, &active):
		writeError(w, http.StatusConflict, "active_booking_exists", err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func newID() string { return uuid.NewString() }
