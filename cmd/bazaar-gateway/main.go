// ABOUTME: Entry point for bazaar-gateway, the marketplace direct-messaging server
// ABOUTME: Subcommands serve, init, health, register and token

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/bazaar-gateway/internal/config"
	"github.com/2389/bazaar-gateway/internal/gateway"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

const banner = `
 _
| |__   __ _ ______ _  __ _ _ __
| '_ \ / _' |_  / _' |/ _' | '__|
| |_) | (_| |/ / (_| | (_| | |
|_.__/ \__,_/___\__,_|\__,_|_|
`

func usage() {
	fmt.Println("Usage: bazaar-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                Start the gateway server")
	fmt.Println("  init                                 Create a new config file interactively")
	fmt.Println("  health                               Check gateway health")
	fmt.Println("  register --actor ID [--name NAME]    Register an actor and optionally set their display name")
	fmt.Println("  token --actor ID [--ttl 720h] [--out FILE]")
	fmt.Println("                                       Issue a bearer token for an actor")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "register":
		err = runRegister(ctx, os.Args[2:])
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.GatewayPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", describeDatabase(cfg.Database))
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Println()

	logger.Info("starting bazaar-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Driver,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func describeDatabase(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverPostgREST {
		return "postgrest " + cfg.URL
	}
	return "sqlite " + cfg.Path
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.GatewayPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
