// Package config handles loading vocaris.toml configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vocaris/vocaris/internal/paths"
)

// DefaultBackendURL is the upstream meeting-assistant backend.
const DefaultBackendURL = "https://vocaris-ztudf.ondigitalocean.app"

// DefaultClickUpTokenURL is ClickUp's OAuth token endpoint.
const DefaultClickUpTokenURL = "https://api.clickup.com/api/v2/oauth/token"

// ProjectFileName is the per-directory config file name.
const ProjectFileName = "vocaris.toml"

// Config represents the merged vocaris configuration.
type Config struct {
	Backend Backend `toml:"backend"`
	Poll    Poll    `toml:"poll"`
	Proxy   Proxy   `toml:"proxy"`
	ClickUp ClickUp `toml:"clickup"`
	Auth    Auth    `toml:"auth"`
}

// Backend configures the upstream API.
type Backend struct {
	BaseURL string   `toml:"base-url"`
	Timeout Duration `toml:"timeout"`
	BotName string   `toml:"bot-name"`
}

// Poll configures the meeting lifecycle pollers.
type Poll struct {
	StatusInterval    Duration `toml:"status-interval"`
	InactiveThreshold int      `toml:"inactive-threshold"`
	ReadinessInterval Duration `toml:"readiness-interval"`
	Cooldown          Duration `toml:"cooldown"`
	SlowAfter         int      `toml:"slow-after"`
	// MaxAttempts caps readiness probing. Zero means unlimited.
	MaxAttempts int `toml:"max-attempts"`
}

// Proxy configures the local HTTP proxy.
type Proxy struct {
	Addr string `toml:"addr"`
}

// ClickUp configures the ClickUp integration.
type ClickUp struct {
	ClientID     string `toml:"client-id"`
	ClientSecret string `toml:"client-secret"`
	TokenURL     string `toml:"token-url"`
	DefaultList  string `toml:"default-list"`
	DueDays      int    `toml:"due-days"`
}

// Auth holds the sign-in provider credentials.
type Auth struct {
	GoogleClientID     string `toml:"google-client-id"`
	GoogleClientSecret string `toml:"google-client-secret"`
	NextAuthSecret     string `toml:"nextauth-secret"`
}

// Missing lists the config keys of the sign-in settings that are empty.
func (a Auth) Missing() []string {
	var missing []string
	if strings.TrimSpace(a.GoogleClientID) == "" {
		missing = append(missing, "google-client-id")
	}
	if strings.TrimSpace(a.GoogleClientSecret) == "" {
		missing = append(missing, "google-client-secret")
	}
	if strings.TrimSpace(a.NextAuthSecret) == "" {
		missing = append(missing, "nextauth-secret")
	}
	return missing
}

// Duration is a time.Duration decoded from strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", string(text))
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL: DefaultBackendURL,
			Timeout: Duration{30 * time.Second},
		},
		Poll: Poll{
			StatusInterval:    Duration{5 * time.Second},
			InactiveThreshold: 3,
			ReadinessInterval: Duration{5 * time.Second},
			Cooldown:          Duration{10 * time.Second},
			SlowAfter:         10,
			MaxAttempts:       120,
		},
		Proxy: Proxy{
			Addr: "127.0.0.1:8787",
		},
		ClickUp: ClickUp{
			TokenURL: DefaultClickUpTokenURL,
			DueDays:  7,
		},
	}
}

// Load loads the global config file and the project file in dir, in that
// order, over the defaults, then applies environment overrides.
// Missing files are not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	configDir, err := paths.DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	if err := decodeFile(filepath.Join(configDir, "config.toml"), cfg); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := decodeFile(filepath.Join(dir, ProjectFileName), cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	normalize(cfg)
	return cfg, nil
}

// decodeFile decodes path over cfg. Keys absent from the file keep their
// current values, which is what layers project settings over global ones.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("parse config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOCARIS_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("VOCARIS_PROXY_ADDR"); v != "" {
		cfg.Proxy.Addr = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("NEXTAUTH_SECRET"); v != "" {
		cfg.Auth.NextAuthSecret = v
	}
	if v := os.Getenv("CLICKUP_CLIENT_ID"); v != "" {
		cfg.ClickUp.ClientID = v
	}
	if v := os.Getenv("CLICKUP_CLIENT_SECRET"); v != "" {
		cfg.ClickUp.ClientSecret = v
	}
}

func normalize(cfg *Config) {
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	cfg.ClickUp.TokenURL = strings.TrimSpace(cfg.ClickUp.TokenURL)
	if cfg.ClickUp.TokenURL == "" {
		cfg.ClickUp.TokenURL = DefaultClickUpTokenURL
	}
	if cfg.Poll.InactiveThreshold < 0 {
		cfg.Poll.InactiveThreshold = 0
	}
	if cfg.Poll.MaxAttempts < 0 {
		cfg.Poll.MaxAttempts = 0
	}
	cfg.Proxy.Addr = strings.TrimSpace(cfg.Proxy.Addr)
}
