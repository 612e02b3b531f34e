// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, .env files, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: "24h"

realtime:
  subscriber_buffer: 16
  dedupe_ttl: "90s"
  dedupe_size: 256

cors:
  allowed_origins:
    - "https://bazaar.example"
    - "http://localhost:5173"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want default %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 24*time.Hour)
	}
	if cfg.Realtime.SubscriberBuffer != 16 {
		t.Errorf("Realtime.SubscriberBuffer = %d, want 16", cfg.Realtime.SubscriberBuffer)
	}
	if cfg.Realtime.DedupeTTL != 90*time.Second {
		t.Errorf("Realtime.DedupeTTL = %v, want %v", cfg.Realtime.DedupeTTL, 90*time.Second)
	}
	if cfg.Realtime.DedupeSize != 256 {
		t.Errorf("Realtime.DedupeSize = %d, want 256", cfg.Realtime.DedupeSize)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS.AllowedOrigins len = %d, want 2", len(cfg.CORS.AllowedOrigins))
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.TokenTTL != 30*24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 30 days", cfg.Auth.TokenTTL)
	}
	if cfg.Realtime.SubscriberBuffer != 64 {
		t.Errorf("Realtime.SubscriberBuffer = %d, want 64", cfg.Realtime.SubscriberBuffer)
	}
	if cfg.Realtime.DedupeTTL != 5*time.Minute {
		t.Errorf("Realtime.DedupeTTL = %v, want 5m", cfg.Realtime.DedupeTTL)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "gateway.toml", `
[server]
http_addr = "localhost:9090"

[database]
driver = "postgrest"
url = "https://project.supabase.co"
api_key = "service-role"

[auth]
jwt_secret = "`+testSecret+`"

[realtime]
dedupe_ttl = "1m"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "localhost:9090")
	}
	if cfg.Database.Driver != DriverPostgREST {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverPostgREST)
	}
	if cfg.Database.URL != "https://project.supabase.co" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Realtime.DedupeTTL != time.Minute {
		t.Errorf("Realtime.DedupeTTL = %v, want 1m", cfg.Realtime.DedupeTTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BAZAAR_SECRET", testSecret)
	t.Setenv("TEST_BAZAAR_DB", "/var/lib/bazaar/test.db")

	configPath := writeFile(t, t.TempDir(), "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: "${TEST_BAZAAR_DB}"
auth:
  jwt_secret: "${TEST_BAZAAR_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/bazaar/test.db" {
		t.Errorf("Database.Path = %q, want expanded value", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	// Registered so t.Setenv restores the variable after godotenv sets it
	t.Setenv("TEST_BAZAAR_DOTENV_SECRET", "")
	os.Unsetenv("TEST_BAZAAR_DOTENV_SECRET")

	writeFile(t, dir, ".env", "TEST_BAZAAR_DOTENV_SECRET="+testSecret+"\n")
	configPath := writeFile(t, dir, "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_BAZAAR_DOTENV_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want value from .env", cfg.Auth.JWTSecret)
	}
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_BAZAAR_PRESET", "from-environment")

	writeFile(t, dir, ".env", "TEST_BAZAAR_PRESET=from-dotenv\n")
	configPath := writeFile(t, dir, "gateway.yaml", `
server:
  http_addr: "${TEST_BAZAAR_PRESET}:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "from-environment:8080" {
		t.Errorf("Server.HTTPAddr = %q, want environment value", cfg.Server.HTTPAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/gateway.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "gateway.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		section string
		field   string
	}{
		{"token_ttl", "auth", "token_ttl"},
		{"dedupe_ttl", "realtime", "dedupe_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeFile(t, t.TempDir(), "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`+tt.section+`:
  `+tt.field+`: "soon"
`)
			_, err := Load(configPath)
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %v, want error mentioning %s", err, tt.field)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: "localhost:8080"},
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "./test.db"},
			Auth:     AuthConfig{JWTSecret: testSecret},
		}
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "tailscale enabled allows empty server address",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "bazaar"}
			},
		},
		{
			name:          "tailscale enabled requires hostname",
			mutate:        func(c *Config) { c.Tailscale = TailscaleConfig{Enabled: true} },
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name:          "http address required",
			mutate:        func(c *Config) { c.Server.HTTPAddr = "" },
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name:          "sqlite path required",
			mutate:        func(c *Config) { c.Database.Path = "" },
			wantErrSubstr: "database.path is required",
		},
		{
			name: "postgrest requires url",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverPostgREST, APIKey: "k"}
			},
			wantErrSubstr: "database.url is required",
		},
		{
			name: "postgrest url scheme",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverPostgREST, URL: "ftp://db", APIKey: "k"}
			},
			wantErrSubstr: "must use http or https",
		},
		{
			name: "postgrest requires api key",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverPostgREST, URL: "https://db.example"}
			},
			wantErrSubstr: "database.api_key is required",
		},
		{
			name:          "unknown driver",
			mutate:        func(c *Config) { c.Database.Driver = "mysql" },
			wantErrSubstr: "not supported",
		},
		{
			name:          "jwt secret required",
			mutate:        func(c *Config) { c.Auth.JWTSecret = "" },
			wantErrSubstr: "auth.jwt_secret is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErrSubstr)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "token", "  jwt-token-value\n")
	configPath := writeFile(t, dir, "chat.toml", `
[gateway]
url = "http://localhost:8080"

[auth]
token_file = "token"
`)

	cfg, err := LoadClient(configPath)
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want default warn", cfg.Logging.Level)
	}
	if cfg.Auth.TokenFile != filepath.Join(dir, "token") {
		t.Errorf("Auth.TokenFile = %q, want path relative to config", cfg.Auth.TokenFile)
	}

	token, err := cfg.ResolveToken()
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	if token != "jwt-token-value" {
		t.Errorf("ResolveToken() = %q, want trimmed token", token)
	}
}

func TestLoadClient_Validation(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantErrSubstr string
	}{
		{"missing url", "[auth]\ntoken = \"x\"\n", "gateway.url is required"},
		{"bad scheme", "[gateway]\nurl = \"ws://x\"\n[auth]\ntoken = \"x\"\n", "http or https"},
		{"missing token", "[gateway]\nurl = \"http://x\"\n", "auth.token or auth.token_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "chat.toml", tt.content)
			_, err := LoadClient(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("LoadClient() error = %v, want error containing %q", err, tt.wantErrSubstr)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	t.Setenv("BAZAAR_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := GatewayPath(); got != filepath.Join("/xdg", "bazaar", "gateway.yaml") {
		t.Errorf("GatewayPath() = %q", got)
	}

	t.Setenv("BAZAAR_CONFIG", "/etc/bazaar.yaml")
	if got := GatewayPath(); got != "/etc/bazaar.yaml" {
		t.Errorf("GatewayPath() = %q, want env override", got)
	}

	t.Setenv("BAZAAR_CHAT_CONFIG", "")
	if got := ClientPath(); got != filepath.Join("/xdg", "bazaar", "chat.toml") {
		t.Errorf("ClientPath() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DataPath(); got != filepath.Join("/data", "bazaar") {
		t.Errorf("DataPath() = %q", got)
	}
}
