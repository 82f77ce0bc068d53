package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	// matching policy
	SearchRadiusKm      float64
	AverageSpeedKmH     float64
	NegotiationEnabled  bool
	DriverRespTimeout   time.Duration
	StaleLocationAfter  time.Duration
	ExcludeStale        bool
	SuspiciousJumpKm    float64
	RejectSuspicious    bool
	MinLocationInterval time.Duration
	GeoCacheTTL         time.Duration

	// housekeeping
	BookingRetention time.Duration
	JanitorInterval  time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "ambulance:drivers:geo",
		KafkaTopic:      "driver-locations",

		SearchRadiusKm:      5,
		AverageSpeedKmH:     40,
		DriverRespTimeout:   30 * time.Second,
		StaleLocationAfter:  5 * time.Minute,
		ExcludeStale:        true,
		SuspiciousJumpKm:    100,
		RejectSuspicious:    true,
		MinLocationInterval: time.Minute,
		GeoCacheTTL:         5 * time.Minute,

		BookingRetention: 30 * 24 * time.Hour,
		JanitorInterval:  24 * time.Hour,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.SearchRadiusKm, "SEARCH_RADIUS_KM", &errs)
	setFloatFromEnv(&cfg.AverageSpeedKmH, "AVERAGE_SPEED_KMH", &errs)
	setBoolFromEnv(&cfg.NegotiationEnabled, "NEGOTIATION_ENABLED")
	setDurationFromEnv(&cfg.DriverRespTimeout, "DRIVER_RESPONSE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.StaleLocationAfter, "STALE_LOCATION_AFTER", &errs)
	setBoolFromEnv(&cfg.ExcludeStale, "EXCLUDE_STALE_LOCATIONS")
	setFloatFromEnv(&cfg.SuspiciousJumpKm, "SUSPICIOUS_JUMP_KM", &errs)
	setBoolFromEnv(&cfg.RejectSuspicious, "REJECT_SUSPICIOUS_MOVEMENT")
	setDurationFromEnv(&cfg.MinLocationInterval, "MIN_LOCATION_INTERVAL", &errs)
	setDurationFromEnv(&cfg.GeoCacheTTL, "GEO_CACHE_TTL", &errs)

	setDurationFromEnv(&cfg.BookingRetention, "BOOKING_RETENTION", &errs)
	setDurationFromEnv(&cfg.JanitorInterval, "JANITOR_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.SearchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_RADIUS_KM must be > 0"))
	}
	if cfg.AverageSpeedKmH <= 0 {
		errs = append(errs, fmt.Errorf("AVERAGE_SPEED_KMH must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setBoolFromEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = strings.EqualFold(v, "true")
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
