package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/api"
	"github.com/mdabidind/pdf-to-word-activa/internal/config"
	"github.com/mdabidind/pdf-to-word-activa/internal/jobs"
)

// jobQueue は API プロセスが使うブローカーとワーカーをまとめます。
type jobQueue struct {
	submitter api.Submitter
	status    *jobs.StatusService
	pool      *jobs.Pool
	manager   *jobs.Manager

	stopWorkers context.CancelFunc
	closeBroker func()
	logger      zerolog.Logger
}

func setupJobs(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*jobQueue, error) {
	broker, closeBroker, err := jobs.OpenBroker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	q := &jobQueue{
		submitter:   broker,
		status:      jobs.NewStatusService(broker),
		stopWorkers: func() {},
		closeBroker: closeBroker,
		logger:      logger,
	}

	needsExecutor := cfg.EmbeddedWorkers || cfg.QueueBackend == config.BackendAsynq
	if !needsExecutor {
		return q, nil
	}

	executor, err := jobs.NewExecutor(cfg, logger.With().Str("component", "converter").Logger())
	if err != nil {
		closeBroker()
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	if cfg.QueueBackend == config.BackendAsynq {
		manager, err := jobs.NewManager(broker, executor, jobs.ManagerOptions{
			RedisURL:    cfg.QueueRedisURL,
			Concurrency: cfg.WorkerConcurrency,
			Logger:      logger.With().Str("component", "asynq").Logger(),
		})
		if err != nil {
			closeBroker()
			return nil, err
		}
		q.manager = manager
		q.submitter = manager
		if cfg.EmbeddedWorkers {
			manager.StartWorkers()
		}
		return q, nil
	}

	pool, err := jobs.NewPool(broker, executor, jobs.PoolOptions{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		Logger:       logger.With().Str("component", "worker").Logger(),
	})
	if err != nil {
		closeBroker()
		return nil, err
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	pool.Start(workerCtx)
	q.pool = pool
	q.stopWorkers = cancel
	return q, nil
}

// Close はワーカーを止めてから接続を閉じます。
func (q *jobQueue) Close() {
	q.stopWorkers()
	if q.pool != nil {
		q.pool.Wait()
	}
	if q.manager != nil {
		q.manager.Shutdown()
	}
	q.closeBroker()
	q.logger.Info().Msg("job queue closed")
}
