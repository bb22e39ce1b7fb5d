package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultModule is the module used when a scrape request names none.
const DefaultModule = "default"

// Duration wraps time.Duration for TOML parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values such as "5s" or "1m".
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Module is one set of Proxmox VE credentials and connection options.
// Either Password or TokenName+TokenValue authenticate User.
type Module struct {
	User       string   `toml:"user"`
	Password   string   `toml:"password"`
	TokenName  string   `toml:"token_name"`
	TokenValue string   `toml:"token_value"`
	VerifySSL  *bool    `toml:"verify_ssl"`
	Timeout    Duration `toml:"timeout"`
}

// UsesToken reports whether the module authenticates with an API token.
func (m Module) UsesToken() bool {
	return m.TokenName != "" && m.TokenValue != ""
}

// VerifiesTLS reports whether server certificates are checked. Unset means
// true.
func (m Module) VerifiesTLS() bool {
	return m.VerifySSL == nil || *m.VerifySSL
}

type modulesFile struct {
	Module map[string]Module `toml:"module"`
}

// LoadModules reads the modules file at path. When the file does not exist
// and PVE_USER is set, a single "default" module is built from the PVE_*
// environment variables instead.
func LoadModules(path string) (map[string]Module, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if m, ok := moduleFromEnv(); ok {
			return map[string]Module{DefaultModule: m}, nil
		}
		return nil, fmt.Errorf("config: modules file %s not found and PVE_USER is not set", path)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read modules file: %w", err)
	}
	return ParseModules(data)
}

// ParseModules decodes a TOML modules document and validates each module.
func ParseModules(data []byte) (map[string]Module, error) {
	var doc modulesFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse modules file: %w", err)
	}
	if len(doc.Module) == 0 {
		return nil, fmt.Errorf("config: modules file defines no [module.<name>] section")
	}
	for name, m := range doc.Module {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("config: module %q: %w", name, err)
		}
	}
	return doc.Module, nil
}

// Validate checks that the module can authenticate.
func (m Module) Validate() error {
	if m.User == "" {
		return fmt.Errorf("user is required")
	}
	if (m.TokenName == "") != (m.TokenValue == "") {
		return fmt.Errorf("token_name and token_value must be set together")
	}
	if !m.UsesToken() && m.Password == "" {
		return fmt.Errorf("either password or token_name/token_value is required")
	}
	if m.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", m.Timeout.Duration)
	}
	return nil
}

func moduleFromEnv() (Module, bool) {
	user := os.Getenv("PVE_USER")
	if user == "" {
		return Module{}, false
	}
	verify := parseBool("PVE_VERIFY_SSL", true)
	return Module{
		User:       user,
		Password:   os.Getenv("PVE_PASSWORD"),
		TokenName:  os.Getenv("PVE_TOKEN_NAME"),
		TokenValue: os.Getenv("PVE_TOKEN_VALUE"),
		VerifySSL:  &verify,
	}, true
}
