// ABOUTME: Entry point for bazaar-chat, a terminal client for bazaar-gateway direct messages
// ABOUTME: Cobra root command plus the shared session setup every subcommand uses

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/client"
	"github.com/2389/bazaar-gateway/internal/config"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bazaar-chat",
	Short:         "Direct messages with other marketplace users",
	Long:          `bazaar-chat lists your conversations and chats with buyers and sellers through a bazaar-gateway.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bazaar-chat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bazaar-chat %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ClientPath(),
		"Path to the bazaar-chat TOML config")
	rootCmd.AddCommand(versionCmd)
}

// env is what a signed-in subcommand works with.
type env struct {
	actorID  string
	identity *auth.Identity
	api      *client.Client
	feed     *client.FeedClient
	logger   *slog.Logger
}

// Close signs out, which ends any open session, then stops the feed.
func (e *env) Close() {
	e.identity.SignOut()
	e.feed.Close()
}

// connect loads the config, signs in with the configured token and checks
// that the gateway answers.
func connect(ctx context.Context) (*env, error) {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))

	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}

	identity := auth.NewIdentity()
	actorID, err := identity.SignIn(token)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	api := client.New(cfg.Gateway.URL, identity.Token(), logger)
	if err := api.Health(ctx); err != nil {
		return nil, fmt.Errorf("gateway %s is not reachable: %w", cfg.Gateway.URL, err)
	}

	feed := client.NewFeedClient(cfg.Gateway.URL, identity.Token(), client.FeedOptions{Logger: logger})
	return &env{actorID: actorID, identity: identity, api: api, feed: feed, logger: logger}, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
