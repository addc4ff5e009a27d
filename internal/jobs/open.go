package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/config"
	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// OpenBroker は QUEUE_BACKEND に従ってブローカーを作成します。
// 返される関数で接続を閉じます。
func OpenBroker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Broker, func(), error) {
	switch cfg.QueueBackend {
	case config.BackendMemory:
		return NewMemoryBroker(cfg.JobRetention), func() {}, nil

	case config.BackendRedis, config.BackendAsynq:
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		return NewRedisBroker(rdb, cfg.JobRetention), closeFn, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		broker := NewPostgresBroker(pool, cfg.JobRetention, logger)
		if err := broker.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return broker, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported queue backend: %s", cfg.QueueBackend)
}

// NewExecutor は設定から変換処理を作成します。
func NewExecutor(cfg *config.Config, logger zerolog.Logger) (*convert.Executor, error) {
	command, args := cfg.ConverterArgs()
	return convert.NewExecutor(convert.Options{
		Command:       command,
		Args:          args,
		Timeout:       cfg.ConverterTimeout,
		SuccessMarker: cfg.ConverterSuccessMarker,
		OCRMarker:     cfg.ConverterOCRMarker,
		WorkspaceDir:  cfg.WorkspaceDir,
		FallbackDir:   cfg.WorkspaceFallbackDir,
		Logger:        logger,
	})
}
