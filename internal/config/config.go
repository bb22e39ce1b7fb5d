package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all exporter configuration values.
type Config struct {
	ListenAddress   string
	ListenPort      int
	ConfigFile      string
	ScrapeTimeout   time.Duration
	ErrorTTL        time.Duration
	ClientCacheSize int
	ClientCacheTTL  time.Duration
	LogLevel        string
	LogFormat       string
	ExporterVersion string

	// DebugEndpoints enables pprof and /debug/errors on the listen port.
	DebugEndpoints bool // PVE_EXPORTER_DEBUG_ENDPOINTS, default: false

	// Modules are the named credential sets a scrape can select with
	// ?module=. Loaded from ConfigFile or, failing that, from PVE_* vars.
	Modules map[string]Module
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values. Modules are loaded separately
// with LoadModules.
func Load() Config {
	return Config{
		ListenAddress: envOrDefault("PVE_EXPORTER_LISTEN_ADDRESS", ""),
		ListenPort:    parseInt("PVE_EXPORTER_LISTEN_PORT", 9221),
		ConfigFile:    envOrDefault("PVE_EXPORTER_CONFIG_FILE", "pve.toml"),
		ScrapeTimeout: parseDuration("PVE_EXPORTER_SCRAPE_TIMEOUT", 30*time.Second),
		ErrorTTL:      parseDuration("PVE_EXPORTER_ERROR_TTL", 5*time.Minute),
		LogLevel:      strings.ToLower(envOrDefault("PVE_EXPORTER_LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(envOrDefault("PVE_EXPORTER_LOG_FORMAT", "text")),

		DebugEndpoints: parseBool("PVE_EXPORTER_DEBUG_ENDPOINTS", false),

		// Clients are keyed by the caller-chosen ?target=, so the cache is bounded.
		ClientCacheSize: parseInt("PVE_EXPORTER_CLIENT_CACHE_SIZE", 128),
		ClientCacheTTL:  parseDuration("PVE_EXPORTER_CLIENT_CACHE_TTL", 15*time.Minute),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	// Fallback: treat as integer seconds
	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
