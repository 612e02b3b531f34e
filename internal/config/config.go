// ABOUTME: Configuration loading and parsing for bazaar-gateway and bazaar-chat
// ABOUTME: Supports YAML or TOML files, a sibling .env file, env var expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverSQLite    = "sqlite"
	DriverPostgREST = "postgrest"
)

// Config represents the complete bazaar-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite (default) or postgrest
	Path   string `yaml:"path" toml:"path"`     // sqlite
	URL    string `yaml:"url" toml:"url"`       // postgrest base URL
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// RealtimeConfig tunes the change feed
type RealtimeConfig struct {
	SubscriberBuffer int           `yaml:"subscriber_buffer" toml:"subscriber_buffer"`
	DedupeSize       int           `yaml:"dedupe_size" toml:"dedupe_size"`
	DedupeTTL        time.Duration `yaml:"-" toml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// CORSConfig lists browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .toml extension selects TOML, anything else is YAML. A .env file next to
// the config is loaded first without overriding variables already set.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	expanded, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		_, err = toml.Decode(expanded, &cfg)
	} else {
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// readExpanded loads the sibling .env, reads path and expands ${VAR} references.
func readExpanded(path string) (string, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return "", fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading config file: %w", err)
	}
	return expandEnvVars(string(data)), nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
	if c.Realtime.SubscriberBuffer == 0 {
		c.Realtime.SubscriberBuffer = 64
	}
	if c.Realtime.DedupeSize == 0 {
		c.Realtime.DedupeSize = 1024
	}
	if c.Realtime.DedupeTTL == 0 {
		c.Realtime.DedupeTTL = 5 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite, "":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgREST:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgrest driver")
		}
		if err := validateHTTPURL(c.Database.URL); err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
		if c.Database.APIKey == "" {
			return fmt.Errorf("database.api_key is required for the postgrest driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use sqlite or postgrest)", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Realtime.SubscriberBuffer < 0 || c.Realtime.DedupeSize < 0 {
		return fmt.Errorf("realtime sizes must not be negative")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Realtime.DedupeTTLRaw != "" {
		cfg.Realtime.DedupeTTL, err = time.ParseDuration(cfg.Realtime.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Realtime.DedupeTTLRaw, err)
		}
	}

	return nil
}
