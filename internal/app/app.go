package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mycarconcierge/marketplace/internal/api"
	"github.com/mycarconcierge/marketplace/internal/api/middleware"
	"github.com/mycarconcierge/marketplace/internal/config"
	"github.com/mycarconcierge/marketplace/internal/db"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/idempotency"
	"github.com/mycarconcierge/marketplace/internal/lock"
	"github.com/mycarconcierge/marketplace/internal/observability"
	"github.com/mycarconcierge/marketplace/internal/repository"
	"github.com/mycarconcierge/marketplace/internal/service"
	"github.com/mycarconcierge/marketplace/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and hold reconciliation worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
	}

	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}
	logger.Info("payment gateway ready", zap.String("mode", cfg.GatewayMode))

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.LockBackend == config.LockBackendRedis {
		locker = lock.NewRedisLocker(cache, cfg.LockTTL)
	}

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(cache, store.Queries(), cfg.IdempotencyTTL)

	notifications := service.NewNotificationService(store, cfg.Currency)
	escrowSvc := service.NewEscrowService(store, gw, locker, notifications, cfg.Fees, cfg.Currency)
	checkoutSvc := service.NewCheckoutService(store, gw, domain.DefaultBidPacks(), service.CheckoutConfig{
		Currency:   cfg.Currency,
		SuccessURL: cfg.PublicBaseURL + "/provider/credits?status=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  cfg.PublicBaseURL + "/provider/credits?status=cancel",
	})
	services := api.Services{
		Escrow:        escrowSvc,
		Checkout:      checkoutSvc,
		Webhooks:      service.NewWebhookService(store, gw, escrowSvc, checkoutSvc),
		Notifications: notifications,
		Marketplace:   service.NewMarketplaceService(store, notifications),
		Payouts:       service.NewPayoutAccountService(store, gw, cfg.PublicBaseURL),
	}

	holdWorker := worker.NewHoldWorker(escrowSvc).
		WithPollInterval(cfg.ReconcileInterval).
		WithMinAge(cfg.ReconcileMinAge).
		WithBatchSize(cfg.ReconcileBatchSize)
	stopWorker := holdWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, store, cache, idemStore, services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping hold reconciliation worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newGateway(cfg *config.Config) (gateway.Gateway, error) {
	var inner gateway.Gateway
	switch cfg.GatewayMode {
	case config.GatewayModeMock:
		inner = gateway.NewMockGateway(cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	case config.GatewayModeStripe:
		inner = gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.GatewayMode)
	}
	return gateway.NewInstrumented(inner, cfg.GatewayTimeout), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
