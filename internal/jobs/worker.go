package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PoolOptions は Pool の設定です。
type PoolOptions struct {
	Concurrency  int
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Pool はブローカーからジョブを取り出して変換するワーカー群です。
type Pool struct {
	broker       Broker
	proc         *processor
	concurrency  int
	pollInterval time.Duration
	logger       zerolog.Logger
	wg           sync.WaitGroup
}

// NewPool は Pool を作成します。
func NewPool(broker Broker, converter Converter, opts PoolOptions) (*Pool, error) {
	if broker == nil {
		return nil, errors.New("broker is nil")
	}
	if converter == nil {
		return nil, errors.New("converter is nil")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Pool{
		broker: broker,
		proc: &processor{
			broker:    broker,
			converter: converter,
			logger:    opts.Logger,
		},
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
	}, nil
}

// Start はワーカーをバックグラウンドで起動します。ctx がキャンセルされると停止します。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id)
		}(i)
	}
	p.logger.Info().Int("concurrency", p.concurrency).Msg("workers started")
}

// Wait は全ワーカーの停止を待ちます。
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Run はワーカーを起動し、ctx がキャンセルされて全ワーカーが止まるまでブロックします。
func (p *Pool) Run(ctx context.Context) {
	p.Start(ctx)
	p.Wait()
	p.logger.Info().Msg("workers stopped")
}

func (p *Pool) work(ctx context.Context, id int) {
	log := p.logger.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.broker.ClaimNext(ctx)
		switch {
		case err == nil:
			if err := p.proc.run(ctx, job); err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Msg("job left unfinished")
			}
		case errors.Is(err, ErrNoPendingJob):
			p.idle(ctx)
		case ctx.Err() != nil:
			return
		default:
			log.Error().Err(err).Msg("failed to claim job")
			p.idle(ctx)
		}
	}
}

// idle は新しいジョブの通知、ポーリング間隔の経過、停止のいずれかまで待ちます。
func (p *Pool) idle(ctx context.Context) {
	var ready <-chan struct{}
	if n, ok := p.broker.(Notifier); ok {
		ready = n.Ready()
	}

	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-ready:
	case <-timer.C:
	}
}
