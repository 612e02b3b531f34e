// ABOUTME: Default config and data locations following the XDG base directory layout
// ABOUTME: Environment overrides take priority over XDG paths

package config

import (
	"os"
	"path/filepath"
)

// GatewayPath returns the path to the gateway config file.
// Priority: BAZAAR_CONFIG env var > XDG_CONFIG_HOME/bazaar/gateway.yaml > ~/.config/bazaar/gateway.yaml
func GatewayPath() string {
	return configPath("BAZAAR_CONFIG", "gateway.yaml")
}

// ClientPath returns the path to the chat client config file.
// Priority: BAZAAR_CHAT_CONFIG env var > XDG_CONFIG_HOME/bazaar/chat.toml > ~/.config/bazaar/chat.toml
func ClientPath() string {
	return configPath("BAZAAR_CHAT_CONFIG", "chat.toml")
}

func configPath(envVar, name string) string {
	if envPath := os.Getenv(envVar); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return name // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bazaar", name)
}

// DataPath returns the bazaar data directory.
// Priority: XDG_DATA_HOME/bazaar > ~/.local/share/bazaar
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "bazaar")
}
