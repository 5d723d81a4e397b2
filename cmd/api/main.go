// Package main is the entry point for the ZoneAtlas API server.
//
// It loads configuration, connects the pgx pool, wires the repositories
// and domain services into the core chassis (middleware, routing, health
// checks), and serves HTTP with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"zoneatlas/internal/api/handlers"
	"zoneatlas/internal/auth"
	"zoneatlas/internal/billing"
	"zoneatlas/internal/config"
	"zoneatlas/internal/core"
	"zoneatlas/internal/db"
	"zoneatlas/internal/external"
	"zoneatlas/internal/queue"
	"zoneatlas/internal/search"
	"zoneatlas/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger
// interface. slog satisfies the leveled methods directly but With
// returns *slog.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("zoneatlas API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	// Repositories.
	planRegistry := billing.NewStaticPlanRegistry()
	freeLimits := planRegistry.Limits(types.PlanTierFree)

	zoningRepo := db.NewZoningRepo(pool, typedLogger)
	usageRepo := db.NewUsageRepo(pool, *freeLimits.SearchLimit)
	subRepo := db.NewSubscriptionRepo(pool)
	historyRepo := db.NewHistoryRepo(pool)
	purchaseRepo := db.NewPurchaseRepo(pool)
	tokenRepo := db.NewTokenRepo(pool)
	rateLimitRepo := db.NewRateLimitRepo(pool, types.RealClock{})

	// Domain services.
	authSvc := auth.NewService(tokenRepo, subRepo, types.RealClock{}, typedLogger)
	searchSvc := search.NewService(zoningRepo, usageRepo, historyRepo, typedLogger)

	// External clients.
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	reportTrigger := queue.NewReportTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 10 * time.Second},
		external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Value(),
			Logger:    typedLogger,
		},
	)
	priceTiers, err := external.ParsePriceTiers(cfg.Billing.PriceTiers)
	if err != nil {
		return fmt.Errorf("parsing STRIPE_PRICE_TIERS_JSON: %w", err)
	}

	// Server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authSvc
	srv.RateLimitStore = rateLimitRepo
	srv.DB = pool

	// Handlers.
	searchHandler := handlers.NewSearchHandler(
		searchSvc,
		cfg.Server.DashboardURL+"/pricing",
		logger,
	)
	historyHandler := handlers.NewHistoryHandler(historyRepo, logger)
	reportsHandler := handlers.NewReportsHandler(
		stripeClient,
		purchaseRepo,
		cfg.Billing.ReportPriceID,
		cfg.Server.DashboardURL,
		srv.Validator,
		logger,
	)
	billingHandler := handlers.NewBillingHandler(
		stripeClient,
		priceTiers,
		cfg.Server.DashboardURL,
		srv.Validator,
		logger,
	)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		subRepo,
		purchaseRepo,
		reportTrigger,
		planRegistry,
		priceTiers,
		cfg.Billing.StripeWebhookSecret.Value(),
		logger,
	)

	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars,
		func(r chi.Router) {
			// The search endpoint carries its own per-IP bucket on top
			// of the per-user quota.
			r.Group(func(r chi.Router) {
				r.Use(srv.RateLimitByIP("search",
					cfg.Server.SearchRateLimit, cfg.Server.SearchRateWindow))
				searchHandler.RegisterRoutes(r)
			})
		},
		historyHandler.RegisterRoutes,
		reportsHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)
	srv.WebhookRegistrars = append(srv.WebhookRegistrars, webhookHandler.RegisterRoutes)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// loadAWSConfig builds the SDK config, honoring an explicit endpoint
// override for local development against ElasticMQ/LocalStack.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
