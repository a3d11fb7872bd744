// Package config parses the CONNECTOR_* environment variables from spec
// §6.4 into a typed Config. No third-party config library is used here
// (see DESIGN.md): the teacher reaches for os.Getenv/strconv directly and
// a dozen scalar knobs do not warrant a YAML/flag framework the spec never
// asked for.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully-resolved, validated runtime configuration for one
// gateway process.
type Config struct {
	WSHost               string
	WSPort               int
	HealthCheckPort      int
	HealthCheckEnabled   bool
	InactivityTimeout    time.Duration
	ReconnectDelay       time.Duration
	RestTimeout          time.Duration
	WSPingInterval       time.Duration
	WSPingTimeout        time.Duration
	MaxSymbolPerWS       int
	MaxConnPerExchange   int // 0 means no cap
	BreakerFailureThresh uint32
	BreakerRecoveryTime  time.Duration
	BreakerHalfOpenCalls uint32
	ClosedQueueMaxSize   int
	OpenQueueMaxSize     int
	DedupWindow          time.Duration
	DedupMaxEntries      int
	RestPoolConnections  int
	RestPoolMaxSize      int
	LogLevel             string

	// DrainTimeout is not an env-configurable knob in spec §6.4 but is the
	// spec §5 DRAIN_TIMEOUT default (10s), still part of the ambient
	// lifecycle stack.
	DrainTimeout time.Duration

	// SubscriberBufferMax and OverflowPolicy configure the downstream
	// multiplexer's per-subscriber outbound buffer (spec §4.8). Not listed
	// among §6.4's recognised options; kept here with the rest of the
	// resolved settings the process needs.
	SubscriberBufferMax int
	OverflowPolicy       string // "drop_oldest" or "close"
}

// Default returns the spec §6.4 defaults with no environment overrides.
func Default() Config {
	return Config{
		WSHost:               "0.0.0.0",
		WSPort:               8765,
		HealthCheckPort:      8766,
		HealthCheckEnabled:   true,
		InactivityTimeout:    3 * time.Second,
		ReconnectDelay:       1 * time.Second,
		RestTimeout:          5 * time.Second,
		WSPingInterval:       20 * time.Second,
		WSPingTimeout:        20 * time.Second,
		MaxSymbolPerWS:       50,
		MaxConnPerExchange:   0,
		BreakerFailureThresh: 5,
		BreakerRecoveryTime:  30 * time.Second,
		BreakerHalfOpenCalls: 1,
		ClosedQueueMaxSize:   1000,
		OpenQueueMaxSize:     0,
		DedupWindow:          120 * time.Second,
		DedupMaxEntries:      10_000,
		RestPoolConnections:  10,
		RestPoolMaxSize:      20,
		LogLevel:             "INFO",
		DrainTimeout:         10 * time.Second,
		SubscriberBufferMax:  256,
		OverflowPolicy:       "drop_oldest",
	}
}

// Load reads the CONNECTOR_* environment variables over Default(),
// returning a configuration error (spec §6.5 exit code 1) on any
// malformed value.
func Load() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("CONNECTOR_WS_HOST"); ok {
		cfg.WSHost = v
	}
	if err := setInt(&cfg.WSPort, "CONNECTOR_WS_PORT"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.HealthCheckPort, "CONNECTOR_WSS_HEALTH_CHECK_PORT"); err != nil {
		return cfg, err
	}
	if err := setBool(&cfg.HealthCheckEnabled, "CONNECTOR_WSS_HEALTH_CHECK_ENABLED"); err != nil {
		return cfg, err
	}
	if err := setSeconds(&cfg.InactivityTimeout, "CONNECTOR_INACTIVITY_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := setSeconds(&cfg.ReconnectDelay, "CONNECTOR_RECONNECT_DELAY"); err != nil {
		return cfg, err
	}
	if err := setSeconds(&cfg.RestTimeout, "CONNECTOR_REST_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := setSecondsInt(&cfg.WSPingInterval, "CONNECTOR_WS_PING_INTERVAL"); err != nil {
		return cfg, err
	}
	if err := setSecondsInt(&cfg.WSPingTimeout, "CONNECTOR_WS_PING_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.MaxSymbolPerWS, "CONNECTOR_MAX_SYMBOL_PER_WS"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.MaxConnPerExchange, "CONNECTOR_MAX_CONN_PER_EXCHANGE"); err != nil {
		return cfg, err
	}
	if err := setUint32(&cfg.BreakerFailureThresh, "CONNECTOR_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); err != nil {
		return cfg, err
	}
	if err := setSeconds(&cfg.BreakerRecoveryTime, "CONNECTOR_CIRCUIT_BREAKER_RECOVERY_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := setUint32(&cfg.BreakerHalfOpenCalls, "CONNECTOR_CIRCUIT_BREAKER_HALF_OPEN_CALLS"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.ClosedQueueMaxSize, "CONNECTOR_CLOSED_QUEUE_MAXSIZE"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.OpenQueueMaxSize, "CONNECTOR_OPEN_QUEUE_MAXSIZE"); err != nil {
		return cfg, err
	}
	if err := setSeconds(&cfg.DedupWindow, "CONNECTOR_DEDUPLICATION_WINDOW_SECONDS"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.DedupMaxEntries, "CONNECTOR_DEDUPLICATION_MAX_ENTRIES"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.RestPoolConnections, "CONNECTOR_REST_POOL_CONNECTIONS"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.RestPoolMaxSize, "CONNECTOR_REST_POOL_MAXSIZE"); err != nil {
		return cfg, err
	}
	if v, ok := os.LookupEnv("CONNECTOR_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the resolved configuration is internally
// consistent. A non-nil error maps to spec §6.5 exit code 1.
func (c Config) Validate() error {
	if c.WSPort <= 0 || c.WSPort > 65535 {
		return fmt.Errorf("config: CONNECTOR_WS_PORT %d out of range", c.WSPort)
	}
	if c.HealthCheckPort <= 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("config: CONNECTOR_WSS_HEALTH_CHECK_PORT %d out of range", c.HealthCheckPort)
	}
	if c.WSPort == c.HealthCheckPort {
		return fmt.Errorf("config: CONNECTOR_WS_PORT and CONNECTOR_WSS_HEALTH_CHECK_PORT must differ")
	}
	if c.MaxSymbolPerWS <= 0 {
		return fmt.Errorf("config: CONNECTOR_MAX_SYMBOL_PER_WS must be positive")
	}
	if c.BreakerFailureThresh == 0 {
		return fmt.Errorf("config: CONNECTOR_CIRCUIT_BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.OverflowPolicy != "drop_oldest" && c.OverflowPolicy != "close" {
		return fmt.Errorf("config: OVERFLOW_POLICY %q must be drop_oldest or close", c.OverflowPolicy)
	}
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setUint32(dst *uint32, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = uint32(n)
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// setSeconds parses a float-seconds env var (e.g. CONNECTOR_INACTIVITY_TIMEOUT=3.0).
func setSeconds(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = time.Duration(f * float64(time.Second))
	return nil
}

// setSecondsInt parses an integer-seconds env var (e.g. CONNECTOR_WS_PING_INTERVAL=20).
func setSecondsInt(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = time.Duration(n) * time.Second
	return nil
}
