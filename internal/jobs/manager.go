package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

const (
	taskTypeConvert = "convert:docx"
	queueConvert    = "conversion"

	scheduleFailure = "Failed to schedule conversion."
)

// ManagerOptions は Manager の設定です。
type ManagerOptions struct {
	RedisURL    string
	Concurrency int
	Logger      zerolog.Logger
}

// Manager はジョブを Asynq で配送します。ジョブ状態は Broker が持ち、
// Asynq のタスクはジョブ ID だけを運びます。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	broker Broker
	proc   *processor
	logger zerolog.Logger
}

// TaskPayload は変換タスクのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(broker Broker, converter Converter, opts ManagerOptions) (*Manager, error) {
	if broker == nil {
		return nil, errors.New("broker is nil")
	}
	if converter == nil {
		return nil, errors.New("converter is nil")
	}
	opt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues: map[string]int{
				queueConvert: 1,
			},
			Logger: asynqLogger{opts.Logger},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		broker: broker,
		proc: &processor{
			broker:    broker,
			converter: converter,
			logger:    opts.Logger,
		},
		logger: opts.Logger,
	}
	mux.HandleFunc(taskTypeConvert, manager.handleConvertTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Run は Asynq サーバーを起動し、シグナルを受けるまでブロックします。
func (m *Manager) Run() error {
	defer m.client.Close()
	return m.server.Run(m.mux)
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() {
	m.server.Shutdown()
	if err := m.client.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to close asynq client")
	}
}

// Enqueue はジョブを登録し、変換タスクを投入します。
// タスクの投入に失敗した場合、ジョブは failed になります。
func (m *Manager) Enqueue(ctx context.Context, doc convert.Document) (string, error) {
	id, err := m.broker.Enqueue(ctx, doc)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: id})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeConvert, body, asynq.Queue(queueConvert))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.TaskID(id)); err != nil {
		m.logger.Error().Err(err).Str("job_id", id).Msg("failed to enqueue conversion task")
		m.abandon(context.WithoutCancel(ctx), id)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

func (m *Manager) abandon(ctx context.Context, id string) {
	if _, err := m.broker.Claim(ctx, id); err != nil {
		m.logger.Warn().Err(err).Str("job_id", id).Msg("failed to claim unscheduled job")
		return
	}
	if err := m.broker.Fail(ctx, id, scheduleFailure); err != nil {
		m.logger.Warn().Err(err).Str("job_id", id).Msg("failed to mark unscheduled job")
	}
}

func (m *Manager) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	job, err := m.broker.Claim(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("skipping conversion task")
			return nil
		}
		return err
	}
	return m.proc.run(ctx, job)
}

// asynqLogger は asynq.Logger を zerolog で実装します。
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
