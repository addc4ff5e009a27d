package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// MemoryBroker はプロセス内でジョブを管理する Broker です。単一ノード構成とテストで使います。
type MemoryBroker struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	pending   []string
	ready     chan struct{}
	retention time.Duration
	now       func() time.Time
}

// NewMemoryBroker は MemoryBroker を作成します。retention が正の場合、
// 終了から retention を過ぎたジョブは次の投入時に削除されます。
func NewMemoryBroker(retention time.Duration) *MemoryBroker {
	return &MemoryBroker{
		jobs:      make(map[string]*Job),
		ready:     make(chan struct{}, 1),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ready はジョブが投入されると通知されるチャネルを返します。
func (b *MemoryBroker) Ready() <-chan struct{} {
	return b.ready
}

func (b *MemoryBroker) notify() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Enqueue はジョブを登録します。
func (b *MemoryBroker) Enqueue(ctx context.Context, doc convert.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()

	b.mu.Lock()
	b.pruneLocked()
	b.jobs[id] = &Job{
		ID:        id,
		State:     StatePending,
		Document:  doc.Clone(),
		CreatedAt: b.now(),
	}
	b.pending = append(b.pending, id)
	b.mu.Unlock()

	b.notify()
	return id, nil
}

// ClaimNext は最も古い pending ジョブを取得します。
func (b *MemoryBroker) ClaimNext(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.pending) > 0 {
		id := b.pending[0]
		b.pending = b.pending[1:]
		job, ok := b.jobs[id]
		if !ok || job.State != StatePending {
			continue
		}
		b.activateLocked(job)
		if len(b.pending) > 0 {
			b.notify()
		}
		return job.clone(), nil
	}
	return nil, ErrNoPendingJob
}

// Claim は指定したジョブを取得します。
func (b *MemoryBroker) Claim(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if job.State != StatePending {
		return nil, ErrNotClaimable
	}
	for i, pid := range b.pending {
		if pid == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	b.activateLocked(job)
	return job.clone(), nil
}

func (b *MemoryBroker) activateLocked(job *Job) {
	job.State = StateActive
	job.StartedAt = timePtr(b.now())
}

// Complete はジョブを completed にします。
func (b *MemoryBroker) Complete(ctx context.Context, id string, result *convert.Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	r := *result
	return b.finish(ctx, id, func(job *Job) {
		job.State = StateCompleted
		job.Result = &r
	})
}

// Fail はジョブを failed にします。
func (b *MemoryBroker) Fail(ctx context.Context, id string, reason string) error {
	return b.finish(ctx, id, func(job *Job) {
		job.State = StateFailed
		job.FailureReason = reason
	})
}

func (b *MemoryBroker) finish(ctx context.Context, id string, mutate func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.State != StateActive {
		return ErrInvalidTransition
	}
	mutate(job)
	job.CompletedAt = timePtr(b.now())
	return nil
}

// Get はジョブを取得します。
func (b *MemoryBroker) Get(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

func (b *MemoryBroker) pruneLocked() {
	if b.retention <= 0 {
		return
	}
	cutoff := b.now().Add(-b.retention)
	for id, job := range b.jobs {
		if job.State.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(b.jobs, id)
		}
	}
}
