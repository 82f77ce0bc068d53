package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "bookings_created_total", Help: "Total bookings created"})
	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "bookings_cancelled_total", Help: "Total bookings cancelled by a caller"})
	MatchesTotal           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "matches_total", Help: "Total driver assignments"})
	NoDriversTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "no_drivers_total", Help: "Bookings cancelled because no driver was available"})
	MatchLatency           = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ambulance_dispatch", Name: "match_latency_seconds", Help: "Booking matching latency seconds"})

	LocationUpdatesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "location_updates_total", Help: "Accepted driver location updates"})
	SuspiciousUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "suspicious_location_updates_total", Help: "Driver location updates flagged as suspicious"})
	GeoCacheHitsTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "geo_cache_hits_total", Help: "Radius query cache hits"})
	DriversOnline          = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ambulance_dispatch", Name: "drivers_online", Help: "Drivers with a live websocket session"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ambulance_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
