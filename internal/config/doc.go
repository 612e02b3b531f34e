// Package config handles configuration loading for bazaar-gateway and
// bazaar-chat.
//
// # Configuration Files
//
// The gateway reads YAML, or TOML when the file ends in .toml. Default
// location (in order):
//
//  1. Path from BAZAAR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bazaar/gateway.yaml
//  3. ~/.config/bazaar/gateway.yaml
//
// The chat client reads TOML from BAZAAR_CHAT_CONFIG or
// $XDG_CONFIG_HOME/bazaar/chat.toml.
//
// # Environment
//
// A .env file in the same directory as the config is loaded first; it never
// overrides variables that are already set. Values can then reference
// environment variables:
//
//	auth:
//	  jwt_secret: "${BAZAAR_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "720h"
//	realtime:
//	  dedupe_ttl: "5m"
//
// # Example
//
//	server:
//	  http_addr: "localhost:8080"
//	database:
//	  driver: sqlite            # or postgrest
//	  path: "~/.local/share/bazaar/gateway.db"
//	  # url: "https://project.supabase.co"
//	  # api_key: "${SUPABASE_SERVICE_KEY}"
//	auth:
//	  jwt_secret: "${BAZAAR_JWT_SECRET}"
//	realtime:
//	  subscriber_buffer: 64
//	cors:
//	  allowed_origins: ["https://bazaar.example"]
//	logging:
//	  level: info
//	  format: text
package config
