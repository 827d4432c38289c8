package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/internal/bootstrap"
	"paygate/internal/config"
	cronpkg "paygate/internal/cron"
	"paygate/internal/middleware"
	"paygate/internal/notify"
	"paygate/internal/payment"
	"paygate/internal/pkg/telegram"
	"paygate/internal/repository"
	"paygate/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	orders := repository.NewOrderRepository(db)
	gwLogs := repository.NewGatewayLogRepository(db)

	// --- Cart store (Redis with in-memory fallback) ---
	carts := newCartStore(cfg, logger)

	// --- Webhook delivery deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewDeliveryDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		10*time.Minute,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for webhook dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Gateway + reconciler ---
	gateway := payment.NewPipraPayGateway(cfg.Gateway.APIURL, cfg.Gateway.APIKey)

	notifiers := notify.MultiNotifier{notify.NewLogNotifier(logger)}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ReportChat != "" {
		bot := telegram.NewBotAPI(cfg.Telegram.BotToken)
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Telegram.ReportChat, logger))
	}

	reconciler := payment.NewReconciler(orders, gateway, notifiers, cfg.Gateway.VerifyWebhook, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, cfg, orders, carts, gateway, reconciler, gwLogs, deduper, logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, orders, gateway, reconciler, gwLogs, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting paygate server",
			zap.String("addr", addr),
			zap.Bool("verify_webhook", cfg.Gateway.VerifyWebhook))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newCartStore(cfg *config.Config, logger *zap.Logger) repository.CartStore {
	if cfg.Redis.Addr == "" {
		return repository.NewMemoryCartStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable for cart store, using in-memory fallback", zap.Error(err))
		return repository.NewMemoryCartStore()
	}

	return repository.NewRedisCartStore(client, 24*time.Hour)
}
