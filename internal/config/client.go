// ABOUTME: TOML configuration for the bazaar-chat terminal client
// ABOUTME: Gateway URL, token location and logging, with the same env expansion as the gateway

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ClientConfig is the bazaar-chat configuration
type ClientConfig struct {
	Gateway ClientGatewayConfig `toml:"gateway"`
	Auth    ClientAuthConfig    `toml:"auth"`
	Logging LoggingConfig       `toml:"logging"`
}

// ClientGatewayConfig locates the gateway
type ClientGatewayConfig struct {
	URL string `toml:"url"`
}

// ClientAuthConfig supplies the bearer token, inline or from a file
type ClientAuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// LoadClient reads a bazaar-chat TOML config.
func LoadClient(path string) (*ClientConfig, error) {
	expanded, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Auth.TokenFile != "" && !filepath.IsAbs(cfg.Auth.TokenFile) {
		cfg.Auth.TokenFile = filepath.Join(filepath.Dir(path), cfg.Auth.TokenFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required config fields are present and valid.
func (c *ClientConfig) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if err := validateHTTPURL(c.Gateway.URL); err != nil {
		return fmt.Errorf("gateway.url: %w", err)
	}
	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return fmt.Errorf("auth.token or auth.token_file is required")
	}
	return nil
}

// ResolveToken returns the inline token or the trimmed contents of the token file.
func (c *ClientConfig) ResolveToken() (string, error) {
	if c.Auth.Token != "" {
		return c.Auth.Token, nil
	}
	data, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.Auth.TokenFile)
	}
	return token, nil
}
