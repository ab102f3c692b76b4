package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/database"
	"github.com/Adjeiq/Hearth/internal/logger"
	"github.com/Adjeiq/Hearth/internal/payment"
	"github.com/Adjeiq/Hearth/internal/psp"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/internal/router"
	"github.com/Adjeiq/Hearth/internal/server"
	"github.com/Adjeiq/Hearth/internal/token"
	"github.com/Adjeiq/Hearth/internal/transaction"
	"github.com/Adjeiq/Hearth/internal/webhook"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	rdb, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}

	srv := server.NewServer(cfg, &log, loggerService, db, rdb)

	refreshRepo := token.NewRefreshRepository(db.Pool)
	userRepo := token.NewUserRepository(db.Pool)
	transactionRepo := transaction.NewRepository(db.Pool)
	paymentRepo := payment.NewRepository(db.Pool)

	tokenService := token.NewService(&cfg.JWT, refreshRepo, &log)
	transactionService := transaction.NewService(transactionRepo)
	processor := psp.FromConfig(&cfg.Stripe, log)
	paymentService := payment.NewService(paymentRepo, transactionService, processor, rdb, cfg.Stripe.Currency)

	handlers := &router.Handlers{
		Auth:        token.NewAuthHandler(tokenService, userRepo),
		Transaction: transaction.NewHandler(transactionService),
		Payment:     payment.NewHandler(paymentService),
		Webhook:     webhook.NewWebhookHandler(cfg.Stripe.WebhookSecret, paymentService, db.Pool),
	}

	r := router.NewRouter(srv, handlers)

	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
