package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/artifacts"
	"github.com/Mindburn-Labs/sita/pkg/auth"
	"github.com/Mindburn-Labs/sita/pkg/config"
	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/events"
	"github.com/Mindburn-Labs/sita/pkg/logging"
	"github.com/Mindburn-Labs/sita/pkg/observability"
	"github.com/Mindburn-Labs/sita/pkg/payments"
	"github.com/Mindburn-Labs/sita/pkg/prefs"
	"github.com/Mindburn-Labs/sita/pkg/records"
	"github.com/Mindburn-Labs/sita/pkg/server"
	"github.com/Mindburn-Labs/sita/pkg/sessions"
	"github.com/Mindburn-Labs/sita/pkg/util/resiliency"
)

const (
	adminSessionTTL = 12 * time.Hour
	evictInterval   = time.Minute
	shutdownGrace   = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the demo site backend",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, config.Load())
	},
}

//nolint:gocognit,gocyclo
func runServer(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	fmt.Fprintf(os.Stdout, "%s\n", colorize(colorBold+colorCyan, "SITA OS starting..."))
	clk := clock.New()

	// 0. Demo profile
	profile := config.DefaultDemoProfile()
	if cfg.DemoProfile != "" {
		profile, err = config.LoadDemoProfile(cfg.DemoProfile)
		if err != nil {
			return err
		}
	}
	logger.Info("demo profile loaded", "name", profile.Name, "seed", profile.Settings.Seed)

	// 1. Telemetry
	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceVersion = Version
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	telemetry, err := observability.New(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	}()

	// 2. Records
	var rs *records.SQLStore
	if cfg.LiteMode() {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		fmt.Fprintf(os.Stdout, "DATABASE_URL not set. Falling back to %s (SQLite at %s).\n",
			colorize(colorBold+colorCyan, "Lite Mode"), cfg.SQLitePath)
		rs, err = records.OpenSQLite(cfg.SQLitePath)
	} else {
		rs, err = records.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer func() { _ = rs.Close() }()
	logger.Info("records ready", "lite", cfg.LiteMode())

	// 3. Preferences
	var kv prefs.KV
	switch {
	case cfg.RedisAddr != "":
		r := prefs.NewRedis(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0, 0)
		defer func() { _ = r.Close() }()
		kv = r
	case cfg.LiteMode():
		if kv, err = prefs.NewSQLite(rs.DB()); err != nil {
			return fmt.Errorf("open prefs: %w", err)
		}
	default:
		p, err := prefs.OpenSQLite(filepath.Join(filepath.Dir(cfg.SQLitePath), "prefs.db"))
		if err != nil {
			return fmt.Errorf("open prefs: %w", err)
		}
		defer func() { _ = p.Close() }()
		kv = p
	}

	// 4. Event bus
	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats unavailable, events disabled", "error", err)
		} else {
			publisher = np
			logger.Info("nats connected", "url", cfg.NATSURL)
		}
	}
	defer func() { _ = publisher.Close() }()

	// 5. Artifacts and deck
	store, err := artifacts.NewStore(ctx, artifacts.Config{
		Backend:  cfg.ArtifactBackend,
		Dir:      cfg.ArtifactDir,
		Bucket:   cfg.ArtifactBucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("open artifacts: %w", err)
	}
	seeded, err := artifacts.SeedDeck(ctx, store)
	if err != nil {
		return fmt.Errorf("seed deck: %w", err)
	}
	logger.Info("artifacts ready", "backend", cfg.ArtifactBackend, "deck_seeded", seeded)

	// 6. Payments
	var provider payments.Provider = &payments.SimProvider{PublicURL: cfg.PublicURL}
	if cfg.CheckoutProviderURL != "" {
		provider = payments.NewHostedProvider(cfg.CheckoutProviderURL, cfg.CheckoutSecretKey,
			resiliency.NewEnhancedClient(resiliency.Options{Name: "checkout", Clock: clk}))
	} else {
		logger.Warn("CHECKOUT_PROVIDER_URL not set, using simulated checkout")
	}
	pay := payments.NewService(payments.Options{
		Provider:      provider,
		Records:       rs,
		Publisher:     publisher,
		WebhookSecret: cfg.CheckoutWebhookSecret,
		PublicURL:     cfg.PublicURL,
		Clock:         clk,
		Logger:        logger,
	})

	// 7. Admin auth
	keys, err := auth.NewInMemoryKeySet(clk)
	if err != nil {
		return fmt.Errorf("init keyset: %w", err)
	}
	secure := strings.HasPrefix(cfg.PublicURL, "https://")
	manager := auth.NewManager(keys, adminSessionTTL, secure, clk)
	var authenticator *auth.Authenticator
	if cfg.AdminEmail != "" && cfg.AdminPasswordHash != "" {
		authenticator = auth.NewAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash)
	} else {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set, admin login disabled")
	}
	var functions *auth.Functions
	if cfg.FunctionsURL != "" {
		functions = auth.NewFunctions(cfg.FunctionsURL,
			resiliency.NewEnhancedClient(resiliency.Options{Name: "functions", Clock: clk}))
	}

	// 8. Edge middleware
	limiter := api.NewGlobalRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2), clk)
	go limiter.Run(ctx)
	gate, err := api.NewVersionGate(cfg.MinClientVersion)
	if err != nil {
		return fmt.Errorf("version gate: %w", err)
	}

	// 9. Sessions
	timing := demo.DefaultTiming()
	if ms := profile.Timing.AttackDismissMs; ms > 0 {
		timing.AttackDismiss = time.Duration(ms) * time.Millisecond
	}
	registry, err := sessions.NewRegistry(sessions.Options{
		Clock:     clk,
		Prefs:     kv,
		Publisher: publisher,
		Logger:    logger,
		Settings:  profile.Settings,
		Timing:    timing,
		Scale:     profile.Timing.AutoplayScale,
		IdleTTL:   cfg.SessionIdleTTL,
	})
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	defer registry.Close()
	go registry.Run(ctx, evictInterval)

	// 10. HTTP
	srv, err := server.New(server.Options{
		Sessions:      registry,
		Payments:      pay,
		Records:       rs,
		Artifacts:     store,
		Auth:          manager,
		Authenticator: authenticator,
		Functions:     functions,
		Telemetry:     telemetry,
		RateLimiter:   limiter,
		VersionGate:   gate,
		Clock:         clk,
		Logger:        logger,
		SecureCookies: secure,
	})
	if err != nil {
		return err
	}
	httpServer := srv.HTTPServer(":" + cfg.Port)
	// Event streams only end when their request context does.
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	httpServer.BaseContext = func(net.Listener) context.Context { return streamCtx }
	httpServer.RegisterOnShutdown(cancelStreams)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(os.Stdout, "%s http://localhost:%s\n", colorize(colorGreen, "ready:"), cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
