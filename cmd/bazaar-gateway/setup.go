// ABOUTME: Operator commands for bazaar-gateway: init, register and token
// ABOUTME: Writes the config file, records actors and issues bearer tokens

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/config"
	"github.com/2389/bazaar-gateway/internal/gateway"
	"github.com/2389/bazaar-gateway/internal/store"
)

const maxDisplayNameLen = 100

// parseFlags reads "--name value", "--name=value" and "-n value" style
// arguments. short maps single-dash aliases to long names.
func parseFlags(args []string, known []string, short map[string]string) (map[string]string, error) {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "--") {
			long, ok := short[name]
			if !ok {
				return nil, fmt.Errorf("unknown flag: %s", arg)
			}
			name = long
		}
		if !allowed[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}

		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("bazaar-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultDbPath := filepath.Join(config.DataPath(), "bazaar.db")

	outputFile := prompt(reader, "Config file path", config.GatewayPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	driver := prompt(reader, "Driver (sqlite/postgrest)", config.DriverSQLite)
	var dbPath, dbURL string
	if driver == config.DriverPostgREST {
		dbURL = prompt(reader, "PostgREST URL", "http://localhost:3000")
		fmt.Println("The API key is read from ${POSTGREST_API_KEY}; put it in the environment or a .env file next to the config.")
	} else {
		driver = config.DriverSQLite
		dbPath = prompt(reader, "SQLite database path", defaultDbPath)
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(prompt(reader, "Enable Tailscale?", "no"))

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "bazaar-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
	}

	fmt.Println("\n--- Realtime Configuration ---")
	corsOrigins := prompt(reader, "Allowed browser origins (comma separated, empty for none)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	jwtSecret, err := generateSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# bazaar-gateway configuration\n")
	cfg.WriteString("# Generated by bazaar-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	if driver == config.DriverPostgREST {
		cfg.WriteString(fmt.Sprintf("  url: \"%s\"\n", dbURL))
		cfg.WriteString("  api_key: \"${POSTGREST_API_KEY}\"\n")
	} else {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("  token_ttl: \"720h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("realtime:\n")
	cfg.WriteString("  subscriber_buffer: 64\n")
	cfg.WriteString("  dedupe_size: 1024\n")
	cfg.WriteString("  dedupe_ttl: \"5m\"\n")
	cfg.WriteString("\n")

	if origins := splitList(corsOrigins); len(origins) > 0 {
		cfg.WriteString("cors:\n")
		cfg.WriteString("  allowed_origins:\n")
		for _, o := range origins {
			cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", o))
		}
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds the signing secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  bazaar-gateway register --actor <id> --name <display name>")
	fmt.Println("  bazaar-gateway token --actor <id>")
	fmt.Println("  bazaar-gateway serve")

	return nil
}

func runRegister(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, []string{"actor", "name"}, map[string]string{"a": "actor", "n": "name"})
	if err != nil {
		return err
	}

	actorID := strings.TrimSpace(flags["actor"])
	if actorID == "" {
		return fmt.Errorf("--actor flag is required")
	}

	displayName, hasName := flags["name"]
	displayName = strings.TrimSpace(displayName)
	if hasName && displayName == "" {
		return fmt.Errorf("display name cannot be empty or whitespace only")
	}
	if len(displayName) > maxDisplayNameLen {
		return fmt.Errorf("display name exceeds maximum length of %d characters", maxDisplayNameLen)
	}

	cfg, err := config.Load(config.GatewayPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := gateway.OpenStore(cfg.Database, quietLogger(cfg.Logging))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RegisterActor(ctx, actorID); err != nil {
		return fmt.Errorf("registering actor: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Registered actor %s\n", actorID)

	if displayName != "" {
		profile := &store.Profile{ActorID: actorID, DisplayName: displayName}
		if existing, err := s.GetProfile(ctx, actorID); err == nil {
			profile.AvatarURL = existing.AvatarURL
		}
		if err := s.UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}
		green.Print("✓ ")
		fmt.Printf("Display name set to %q\n", displayName)
	}

	return nil
}

func runToken(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, []string{"actor", "ttl", "out"}, map[string]string{"a": "actor", "o": "out"})
	if err != nil {
		return err
	}

	actorID := strings.TrimSpace(flags["actor"])
	if actorID == "" {
		return fmt.Errorf("--actor flag is required")
	}

	cfg, err := config.Load(config.GatewayPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ttl := cfg.Auth.TokenTTL
	if raw, ok := flags["ttl"]; ok {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing --ttl %q: %w", raw, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
	}

	yellow := color.New(color.FgYellow)

	s, err := gateway.OpenStore(cfg.Database, quietLogger(cfg.Logging))
	if err != nil {
		return err
	}
	exists, err := s.ActorExists(ctx, actorID)
	s.Close()
	if err != nil {
		return fmt.Errorf("checking actor: %w", err)
	}
	if !exists {
		yellow.Print("! ")
		fmt.Fprintf(os.Stderr, "Actor %s is not registered; the gateway will reject this token until it is\n", actorID)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}
	token, err := verifier.Generate(actorID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	out, ok := flags["out"]
	if !ok {
		fmt.Println(token)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(out, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Token for %s written to %s (expires %s)\n", actorID, out, time.Now().Add(ttl).Format(time.RFC3339))
	return nil
}

// quietLogger keeps store chatter off the terminal for one-shot commands.
func quietLogger(cfg config.LoggingConfig) *slog.Logger {
	cfg.Level = "warn"
	return setupLogger(cfg)
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
