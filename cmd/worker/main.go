// Package main は変換ワーカーのエントリーポイントです。
// API とは別のプロセスで redis / postgres / asynq のキューからジョブを処理します。
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mdabidind/pdf-to-word-activa/internal/config"
	"github.com/mdabidind/pdf-to-word-activa/internal/jobs"
	"github.com/mdabidind/pdf-to-word-activa/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(gin.ReleaseMode, "info")
		l.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.GinMode, cfg.LogLevel).With().Str("component", "worker").Logger()

	if cfg.QueueBackend == config.BackendMemory {
		log.Fatal().Msg("the memory queue backend only runs inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, closeBroker, err := jobs.OpenBroker(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.QueueBackend).Msg("failed to open job broker")
	}
	defer closeBroker()

	executor, err := jobs.NewExecutor(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create converter")
	}

	if cfg.QueueBackend == config.BackendAsynq {
		manager, err := jobs.NewManager(broker, executor, jobs.ManagerOptions{
			RedisURL:    cfg.QueueRedisURL,
			Concurrency: cfg.WorkerConcurrency,
			Logger:      log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create asynq manager")
		}
		// Run はシグナルを受けるまでブロックします
		if err := manager.Run(); err != nil {
			log.Error().Err(err).Msg("asynq server stopped with error")
		}
		return
	}

	pool, err := jobs.NewPool(broker, executor, jobs.PoolOptions{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		Logger:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}
	pool.Run(ctx)
}
