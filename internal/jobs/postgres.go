package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

const qCreateSchema = `
create table if not exists conversion_jobs (
    id text primary key,
    seq bigserial,
    state text not null,
    filename text not null,
    pages text not null default '',
    payload bytea not null,
    result jsonb,
    failure_reason text,
    created_at timestamptz not null,
    started_at timestamptz,
    completed_at timestamptz
);
create index if not exists conversion_jobs_pending_idx
    on conversion_jobs (seq) where state = 'pending';
`

const jobColumns = `id, state, filename, pages, payload, result, coalesce(failure_reason, ''),
    created_at, started_at, completed_at`

const qInsertJob = `
insert into conversion_jobs (id, state, filename, pages, payload, created_at)
values ($1, 'pending', $2, $3, $4, $5)
`

const qClaimNextJob = `
with next_job as (
    select id
    from conversion_jobs
    where state = 'pending'
    order by seq asc
    for update skip locked
    limit 1
)
update conversion_jobs
set state = 'active', started_at = $1
where id in (select id from next_job)
returning ` + jobColumns

const qClaimJob = `
update conversion_jobs
set state = 'active', started_at = $2
where id = $1 and state = 'pending'
returning ` + jobColumns

const qFinishJob = `
update conversion_jobs
set state = $2, result = $3, failure_reason = $4, completed_at = $5
where id = $1 and state = 'active'
`

const qSelectJob = `select ` + jobColumns + ` from conversion_jobs where id = $1`

const qJobExists = `select exists(select 1 from conversion_jobs where id = $1)`

const qPruneJobs = `
delete from conversion_jobs
where state in ('completed', 'failed') and completed_at < $1
`

// PostgresBroker はジョブ状態を PostgreSQL に保存します。
// 取得は FOR UPDATE SKIP LOCKED で行うため、複数のワーカープロセスが同じジョブを取ることはありません。
type PostgresBroker struct {
	db        *pgxpool.Pool
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPostgresBroker は PostgresBroker を作成します。
func NewPostgresBroker(db *pgxpool.Pool, retention time.Duration, logger zerolog.Logger) *PostgresBroker {
	return &PostgresBroker{
		db:        db,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema はテーブルがなければ作成します。
func (b *PostgresBroker) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, qCreateSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Enqueue はジョブを登録します。
func (b *PostgresBroker) Enqueue(ctx context.Context, doc convert.Document) (string, error) {
	b.prune(ctx)

	id := uuid.NewString()
	data := doc.Data
	if data == nil {
		data = []byte{}
	}
	if _, err := b.db.Exec(ctx, qInsertJob, id, doc.Filename, doc.Pages, data, b.now()); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNext は最も古い pending ジョブを取得します。
func (b *PostgresBroker) ClaimNext(ctx context.Context) (*Job, error) {
	job, err := scanJob(b.db.QueryRow(ctx, qClaimNextJob, b.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingJob
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Claim は指定したジョブを取得します。
func (b *PostgresBroker) Claim(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(b.db.QueryRow(ctx, qClaimJob, id, b.now()))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if err := b.requireExists(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotClaimable
}

// Complete はジョブを completed にします。
func (b *PostgresBroker) Complete(ctx context.Context, id string, result *convert.Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return b.finish(ctx, id, StateCompleted, payload, nil)
}

// Fail はジョブを failed にします。
func (b *PostgresBroker) Fail(ctx context.Context, id string, reason string) error {
	return b.finish(ctx, id, StateFailed, nil, &reason)
}

func (b *PostgresBroker) finish(ctx context.Context, id string, state State, result []byte, reason *string) error {
	tag, err := b.db.Exec(ctx, qFinishJob, id, string(state), result, reason, b.now())
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := b.requireExists(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// Get はジョブを取得します。
func (b *PostgresBroker) Get(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(b.db.QueryRow(ctx, qSelectJob, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (b *PostgresBroker) requireExists(ctx context.Context, id string) error {
	var exists bool
	if err := b.db.QueryRow(ctx, qJobExists, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBroker) prune(ctx context.Context) {
	if b.retention <= 0 {
		return
	}
	tag, err := b.db.Exec(ctx, qPruneJobs, b.now().Add(-b.retention))
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to prune finished jobs")
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		b.logger.Debug().Int64("count", n).Msg("pruned finished jobs")
	}
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job    Job
		state  string
		result []byte
	)
	err := row.Scan(
		&job.ID, &state, &job.Document.Filename, &job.Document.Pages, &job.Document.Data,
		&result, &job.FailureReason, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.State = State(state)
	if !job.State.valid() {
		return nil, fmt.Errorf("job %s has unknown state %q", job.ID, state)
	}
	if len(result) > 0 {
		var r convert.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode result of job %s: %w", job.ID, err)
		}
		job.Result = &r
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}
