package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
	loggerPkg "github.com/Adjeiq/Hearth/internal/logger"
)

type Database struct {
	Pool *pgxpool.Pool
}

// zerologAdapter bridges pgx tracelog records into zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (a *zerologAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		event = a.logger.Error()
	case tracelog.LogLevelWarn:
		event = a.logger.Warn()
	case tracelog.LogLevelInfo:
		event = a.logger.Info()
	default:
		event = a.logger.Debug()
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func New(cfg *config.Config, log *zerolog.Logger, ls *loggerPkg.LoggerService) (*Database, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	poolConfig.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	pgxLogger := loggerPkg.NewPgxLogger(log.GetLevel())
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   &zerologAdapter{logger: pgxLogger},
		LogLevel: tracelog.LogLevel(loggerPkg.GetPgxTraceLogLevel(log.GetLevel())),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("Connected to PostgreSQL successfully")

	return &Database{Pool: pool}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *Database) Close() {
	d.Pool.Close()
}
