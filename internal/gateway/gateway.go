// ABOUTME: Gateway owns the store, realtime feed, directory and HTTP server of bazaar-gateway
// ABOUTME: Serves the JSON API and websocket feed on a TCP address or a tailnet listener

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/bazaar-gateway/internal/auth"
	"github.com/2389/bazaar-gateway/internal/config"
	"github.com/2389/bazaar-gateway/internal/directory"
	"github.com/2389/bazaar-gateway/internal/realtime"
	"github.com/2389/bazaar-gateway/internal/store"
)

// Gateway is the bazaar-gateway server.
type Gateway struct {
	config      *config.Config
	store       store.Store // publishes inserts to feed
	feed        *realtime.Feed
	directory   *directory.Directory
	verifier    *auth.JWTVerifier
	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
	now         func() time.Time
}

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return s, nil
	case config.DriverPostgREST:
		return store.NewPostgRESTStore(cfg.URL, cfg.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// New creates a gateway with the configured store backend.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := OpenStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore creates a gateway around an already opened store.
// Shutdown closes the store.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}

	feed := realtime.NewFeed(logger, cfg.Realtime.SubscriberBuffer)
	notifying := realtime.NewNotifyingStore(s, feed)

	gw := &Gateway{
		config:    cfg,
		store:     notifying,
		feed:      feed,
		directory: directory.New(notifying, logger),
		verifier:  verifier,
		logger:    logger.With("component", "gateway"),
		now:       time.Now,
	}
	gw.handler = gw.routes()
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// SubscriberCount returns the number of open feed subscriptions.
func (g *Gateway) SubscriberCount() int {
	return g.feed.SubscriberCount()
}

// Run serves until ctx is canceled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the error of a failed server.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.listen(ctx)
	if err != nil {
		_ = g.shutdownComponents()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// the caller's context is already done
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) listen(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.listenTailscale(ctx)
	}
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "bazaar-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
}

// listenTailscale joins the tailnet and listens on :80 there.
func (g *Gateway) listenTailscale(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	ts := &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := ts.Up(ctx)
	if err != nil {
		_ = ts.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		_ = ts.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	g.tsnetServer = ts
	return ln, nil
}

func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases every component.
// Closing the feed ends open websocket subscriptions.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if err := g.shutdownComponents(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Gateway) shutdownComponents() error {
	var errs []error
	g.feed.Close()
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())
	return errors.Join(errs...)
}
