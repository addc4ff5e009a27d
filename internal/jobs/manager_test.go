package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// newHandlerManager は Asynq に接続せずにタスクハンドラーだけを検証するための Manager を返します。
func newHandlerManager(b Broker, c Converter) *Manager {
	return &Manager{
		broker: b,
		proc:   &processor{broker: b, converter: c, logger: zerolog.Nop()},
		logger: zerolog.Nop(),
	}
}

func convertTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(&TaskPayload{JobID: id})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(taskTypeConvert, body)
}

func TestHandleConvertTaskCompletesJob(t *testing.T) {
	b := NewMemoryBroker(0)
	m := newHandlerManager(b, succeedingConverter())
	ctx := context.Background()
	id, _ := b.Enqueue(ctx, testDocument("scan.pdf"))

	if err := m.handleConvertTask(ctx, convertTask(t, id)); err != nil {
		t.Fatalf("handleConvertTask returned error: %v", err)
	}
	job, _ := b.Get(ctx, id)
	if job.State != StateCompleted || job.Result.Filename != "scan.docx" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestHandleConvertTaskSkipsDuplicateDelivery(t *testing.T) {
	b := NewMemoryBroker(0)
	conv := succeedingConverter()
	m := newHandlerManager(b, conv)
	ctx := context.Background()
	id, _ := b.Enqueue(ctx, testDocument("scan.pdf"))

	for i := 0; i < 2; i++ {
		if err := m.handleConvertTask(ctx, convertTask(t, id)); err != nil {
			t.Fatalf("handleConvertTask returned error: %v", err)
		}
	}
	if n := conv.calls.Load(); n != 1 {
		t.Fatalf("expected a single conversion, got %d", n)
	}
	if err := m.handleConvertTask(ctx, convertTask(t, "missing")); err != nil {
		t.Fatalf("unknown job should be skipped, got %v", err)
	}
}

func TestHandleConvertTaskRejectsBadPayload(t *testing.T) {
	m := newHandlerManager(NewMemoryBroker(0), succeedingConverter())
	err := m.handleConvertTask(context.Background(), asynq.NewTask(taskTypeConvert, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	err = m.handleConvertTask(context.Background(), asynq.NewTask(taskTypeConvert, []byte(`{}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestAbandonFailsUnscheduledJob(t *testing.T) {
	b := NewMemoryBroker(0)
	m := newHandlerManager(b, succeedingConverter())
	ctx := context.Background()
	id, _ := b.Enqueue(ctx, testDocument("a.pdf"))

	m.abandon(ctx, id)

	job, _ := b.Get(ctx, id)
	if job.State != StateFailed || job.FailureReason != scheduleFailure {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	_, err := NewManager(NewMemoryBroker(0), succeedingConverter(), ManagerOptions{RedisURL: "http://nope"})
	if err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}
