package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

const (
	jobKeyPrefix = "job:"
	pendingKey   = "queue:pending"
)

// ハッシュのフィールド名
const (
	fieldState       = "state"
	fieldFilename    = "filename"
	fieldPages       = "pages"
	fieldData        = "data"
	fieldResult      = "result"
	fieldReason      = "failureReason"
	fieldCreatedAt   = "createdAt"
	fieldStartedAt   = "startedAt"
	fieldCompletedAt = "completedAt"
)

// スクリプトの戻り値
const (
	scriptMissing    = 0
	scriptWrongState = 1
	scriptOK         = 2
)

// KEYS[1]=待機リスト ARGV[1]=キー接頭辞 ARGV[2]=開始時刻
var claimNextScript = redis.NewScript(`
while true do
  local id = redis.call('RPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'state') == 'pending' then
    redis.call('HSET', key, 'state', 'active', 'startedAt', ARGV[2])
    return id
  end
end
`)

// KEYS[1]=ジョブ KEYS[2]=待機リスト ARGV[1]=ジョブID ARGV[2]=開始時刻
var claimScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 0
end
if state ~= 'pending' then
  return 1
end
redis.call('HSET', KEYS[1], 'state', 'active', 'startedAt', ARGV[2])
redis.call('LREM', KEYS[2], 0, ARGV[1])
return 2
`)

// KEYS[1]=ジョブ ARGV[1]=終了状態 ARGV[2]=フィールド ARGV[3]=値 ARGV[4]=終了時刻 ARGV[5]=保持期間(ms)
var finishScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 0
end
if state ~= 'active' then
  return 1
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], ARGV[2], ARGV[3], 'completedAt', ARGV[4])
if tonumber(ARGV[5]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return 2
`)

// RedisBroker はジョブ状態を Redis に保存します。
// 状態遷移は Lua スクリプトで行うため、複数プロセスから同時に取得しても重複しません。
type RedisBroker struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisBroker は RedisBroker を作成します。
func NewRedisBroker(rdb *redis.Client, retention time.Duration) *RedisBroker {
	return &RedisBroker{
		rdb:       rdb,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue はジョブを登録します。
func (b *RedisBroker) Enqueue(ctx context.Context, doc convert.Document) (string, error) {
	id := uuid.NewString()

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(id), map[string]any{
		fieldState:     string(StatePending),
		fieldFilename:  doc.Filename,
		fieldPages:     doc.Pages,
		fieldData:      doc.Data,
		fieldCreatedAt: formatTime(b.now()),
	})
	pipe.LPush(ctx, pendingKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNext は最も古い pending ジョブを取得します。
func (b *RedisBroker) ClaimNext(ctx context.Context) (*Job, error) {
	id, err := claimNextScript.Run(ctx, b.rdb, []string{pendingKey}, jobKeyPrefix, formatTime(b.now())).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoPendingJob
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return b.Get(ctx, id)
}

// Claim は指定したジョブを取得します。
func (b *RedisBroker) Claim(ctx context.Context, id string) (*Job, error) {
	res, err := claimScript.Run(ctx, b.rdb, []string{jobKey(id), pendingKey}, id, formatTime(b.now())).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	switch res {
	case scriptMissing:
		return nil, ErrNotFound
	case scriptWrongState:
		return nil, ErrNotClaimable
	}
	return b.Get(ctx, id)
}

// Complete はジョブを completed にします。
func (b *RedisBroker) Complete(ctx context.Context, id string, result *convert.Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return b.finish(ctx, id, StateCompleted, fieldResult, string(payload))
}

// Fail はジョブを failed にします。
func (b *RedisBroker) Fail(ctx context.Context, id string, reason string) error {
	return b.finish(ctx, id, StateFailed, fieldReason, reason)
}

func (b *RedisBroker) finish(ctx context.Context, id string, state State, field, value string) error {
	res, err := finishScript.Run(ctx, b.rdb, []string{jobKey(id)},
		string(state), field, value, formatTime(b.now()), b.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	switch res {
	case scriptMissing:
		return ErrNotFound
	case scriptWrongState:
		return ErrInvalidTransition
	}
	return nil
}

// Get はジョブを取得します。
func (b *RedisBroker) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	fields, err := b.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeJob(id, fields)
}

func decodeJob(id string, fields map[string]string) (*Job, error) {
	job := &Job{
		ID:    id,
		State: State(fields[fieldState]),
		Document: convert.Document{
			Filename: fields[fieldFilename],
			Pages:    fields[fieldPages],
			Data:     []byte(fields[fieldData]),
		},
		FailureReason: fields[fieldReason],
	}
	if !job.State.valid() {
		return nil, fmt.Errorf("job %s has unknown state %q", id, fields[fieldState])
	}

	var err error
	if job.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if v := fields[fieldStartedAt]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		job.StartedAt = &t
	}
	if v := fields[fieldCompletedAt]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		job.CompletedAt = &t
	}
	if v := fields[fieldResult]; v != "" {
		var result convert.Result
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result of job %s: %w", id, err)
		}
		job.Result = &result
	}
	return job, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
