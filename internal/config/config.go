// Package config loads service settings from environment variables, applying
// defaults and validating before anything else starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
)

// convertWindowLayout is the format for explicit conversion window bounds.
const convertWindowLayout = "2006-01-02 15:04:05"

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL    string
	DatabaseSchema string

	WorkDir            string
	Timesteps          int
	FaultTolerance     float64
	InterpolationRatio float64
	MissingValue       string
	DecoderPath        string
	DeleteAfterConvert bool
	Bounds             domain.Rect

	// Optional explicit conversion window; when set, both bounds are set
	// and the store-derived run range is ignored.
	ConvertFrom  *time.Time
	ConvertUntil *time.Time

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka summary publishing (feature-flagged via KAFKA_BROKERS).
	KafkaBrokers      []string
	KafkaSummaryTopic string
	KafkaEnabled      bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	timesteps, err := parseInt("TIMESTEPS", 12)
	if err != nil {
		return nil, err
	}
	faultTolerance, err := parseFloat("FAULT_TOLERANCE", 0.33)
	if err != nil {
		return nil, err
	}
	interpolationRatio, err := parseFloat("INTERPOLATION_RATIO", 0.67)
	if err != nil {
		return nil, err
	}
	bounds, err := parseBounds()
	if err != nil {
		return nil, err
	}
	from, until, err := parseConvertWindow()
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: envOrDefault("DATABASE_SCHEMA", "icon"),

		WorkDir:            strings.TrimRight(envOrDefault("WORK_DIR", "downloads"), "/"),
		Timesteps:          timesteps,
		FaultTolerance:     faultTolerance,
		InterpolationRatio: interpolationRatio,
		MissingValue:       envOrDefault("MISSING_VALUE", "null"),
		DecoderPath:        envOrDefault("DECODER_PATH", "/usr/local/bin/grib_get_data"),
		DeleteAfterConvert: os.Getenv("DELETE_AFTER_CONVERT") == "true",
		Bounds:             bounds,
		ConvertFrom:        from,
		ConvertUntil:       until,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:      brokers,
		KafkaSummaryTopic: envOrDefault("KAFKA_SUMMARY_TOPIC", "converted-timesteps"),
		KafkaEnabled:      len(brokers) > 0,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.Timesteps <= 0 {
		return nil, errors.New("TIMESTEPS must be positive")
	}
	if cfg.FaultTolerance < 0 || cfg.FaultTolerance > 1 {
		return nil, errors.New("FAULT_TOLERANCE must be within [0,1]")
	}
	if cfg.InterpolationRatio < 0 || cfg.InterpolationRatio > 1 {
		return nil, errors.New("INTERPOLATION_RATIO must be within [0,1]")
	}
	if cfg.DecoderPath == "" {
		return nil, errors.New("DECODER_PATH must not be empty")
	}
	if shutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseBounds() (domain.Rect, error) {
	r := domain.DefaultRect
	var err error
	if r.MinLatitude, err = parseFloat("MIN_LATITUDE", r.MinLatitude); err != nil {
		return r, err
	}
	if r.MaxLatitude, err = parseFloat("MAX_LATITUDE", r.MaxLatitude); err != nil {
		return r, err
	}
	if r.MinLongitude, err = parseFloat("MIN_LONGITUDE", r.MinLongitude); err != nil {
		return r, err
	}
	if r.MaxLongitude, err = parseFloat("MAX_LONGITUDE", r.MaxLongitude); err != nil {
		return r, err
	}
	if r.MinLatitude > r.MaxLatitude || r.MinLongitude > r.MaxLongitude {
		return r, errors.New("coordinate bounds are inverted")
	}
	return r, nil
}

func parseConvertWindow() (*time.Time, *time.Time, error) {
	fromStr, untilStr := os.Getenv("CONVERT_FROM"), os.Getenv("CONVERT_UNTIL")
	if fromStr == "" && untilStr == "" {
		return nil, nil, nil
	}
	if fromStr == "" || untilStr == "" {
		return nil, nil, errors.New("CONVERT_FROM and CONVERT_UNTIL must be set together")
	}
	from, err := time.ParseInLocation(convertWindowLayout, fromStr, time.UTC)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CONVERT_FROM: %w", err)
	}
	until, err := time.ParseInLocation(convertWindowLayout, untilStr, time.UTC)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CONVERT_UNTIL: %w", err)
	}
	if until.Before(from) {
		return nil, nil, errors.New("CONVERT_UNTIL is before CONVERT_FROM")
	}
	return &from, &until, nil
}
