package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/gateway"
	"github.com/Adjeiq/Hearth/internal/logger"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/internal/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	// The gateway only verifies tokens, it never issues or refreshes them,
	// so it runs without a refresh token store.
	tokenService := token.NewService(&cfg.JWT, nil, &log)

	var limiter gateway.RateLimiter
	rdb, err := redis.New(&log, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
	} else {
		limiter = rdb
	}

	g, err := gateway.New(&cfg.Gateway, tokenService, limiter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gateway.Serve(ctx, g); err != nil {
		log.Fatal().Err(err).Msg("gateway failed")
	}
	log.Info().Msg("gateway stopped")
}
