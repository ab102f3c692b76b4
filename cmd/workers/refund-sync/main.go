package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/database"
	"github.com/Adjeiq/Hearth/internal/logger"
	"github.com/Adjeiq/Hearth/internal/payment"
	"github.com/Adjeiq/Hearth/internal/psp"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/internal/transaction"
)

const (
	syncInterval = 1 * time.Minute
	syncBatch    = 200
	lockKey      = "workers:refund-sync"
	lockTTL      = 50 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().Msg("Starting Refund Sync Worker...")

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	rdb, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}

	transactionService := transaction.NewService(transaction.NewRepository(db.Pool))
	processor := psp.FromConfig(&cfg.Stripe, log)
	paymentService := payment.NewService(payment.NewRepository(db.Pool), transactionService, processor, rdb, cfg.Stripe.Currency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Refund Sync Worker stopped")
			return
		case <-ticker.C:
			runOnce(ctx, rdb, paymentService, &log)
		}
	}
}

// runOnce syncs one batch under a distributed lock so only one worker
// instance reconciles at a time.
func runOnce(ctx context.Context, rdb *redis.Client, payments *payment.Service, log *zerolog.Logger) {
	lock, err := rdb.AcquireLock(ctx, lockKey, lockTTL)
	if errors.Is(err, redis.ErrLockHeld) {
		log.Debug().Msg("another worker holds the sync lock, skipping")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire sync lock")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to release sync lock")
		}
	}()

	synced, err := payments.SyncPendingRefunds(ctx, syncBatch)
	if err != nil {
		log.Error().Err(err).Msg("refund sync failed")
		return
	}
	if synced > 0 {
		log.Info().Int("synced", synced).Msg("refunds reconciled")
	}
}
