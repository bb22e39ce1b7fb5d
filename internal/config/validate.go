package config

import (
	"fmt"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("config: ListenPort must be 1-65535, got %d", c.ListenPort)
	}

	if c.ScrapeTimeout < time.Second {
		return fmt.Errorf("config: ScrapeTimeout must be >= 1s, got %v", c.ScrapeTimeout)
	}

	if c.ClientCacheSize < 1 {
		return fmt.Errorf("config: ClientCacheSize must be >= 1, got %d", c.ClientCacheSize)
	}

	if c.ClientCacheTTL < time.Second {
		return fmt.Errorf("config: ClientCacheTTL must be >= 1s, got %v", c.ClientCacheTTL)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: PVE_EXPORTER_LOG_LEVEL must be one of debug|info|warn|error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: PVE_EXPORTER_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if len(c.Modules) == 0 {
		return fmt.Errorf("config: at least one module is required")
	}
	for name, m := range c.Modules {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("config: module %q: %w", name, err)
		}
	}

	return nil
}
