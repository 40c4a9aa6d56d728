package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime knob of the service. It is loaded once at
// process start and passed around by value; nothing mutates it afterwards.
type Config struct {
	Addr        string
	PostgresDSN string

	// Token signing and lifetimes. AccessTTL defaults to the production
	// contract (30m); the long developer-convenience lifetime is only
	// reachable by setting VENUELINK_ACCESS_TTL explicitly.
	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Rate limiting.
	RateLimit    int
	RateWindow   time.Duration
	RateBurst    int
	RateFailOpen bool

	// Password policy minimums.
	PasswordMinLength int

	ServiceName string
}

// Load reads configuration from environment variables with defaults.
// The signing secret is the only hard requirement.
func Load() (Config, error) {
	cfg := Config{
		Addr:              getEnv("VENUELINK_ADDR", ":8080"),
		PostgresDSN:       os.Getenv("VENUELINK_PG_DSN"),
		AuthSecret:        strings.TrimSpace(os.Getenv("VENUELINK_AUTH_SECRET")),
		Issuer:            getEnv("VENUELINK_ISSUER", "venuelink"),
		AccessTTL:         getDuration("VENUELINK_ACCESS_TTL", 30*time.Minute),
		RefreshTTL:        getDuration("VENUELINK_REFRESH_TTL", 7*24*time.Hour),
		RateLimit:         getInt("VENUELINK_RATE_LIMIT", 60),
		RateWindow:        getDuration("VENUELINK_RATE_WINDOW", time.Minute),
		RateBurst:         getInt("VENUELINK_RATE_BURST", 100),
		PasswordMinLength: getInt("VENUELINK_PASSWORD_MIN_LENGTH", 8),
		ServiceName:       getEnv("VENUELINK_SERVICE_NAME", "venuelink-api"),
	}

	switch mode := strings.ToLower(getEnv("VENUELINK_RATE_FAIL_MODE", "closed")); mode {
	case "closed":
		cfg.RateFailOpen = false
	case "open":
		cfg.RateFailOpen = true
	default:
		return Config{}, fmt.Errorf("VENUELINK_RATE_FAIL_MODE must be open or closed, got %q", mode)
	}

	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("VENUELINK_AUTH_SECRET is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, fmt.Errorf("token lifetimes must be positive")
	}
	if cfg.RateLimit <= 0 || cfg.RateWindow <= 0 {
		return Config{}, fmt.Errorf("rate limit and window must be positive")
	}
	if cfg.RateBurst < cfg.RateLimit {
		cfg.RateBurst = cfg.RateLimit
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
