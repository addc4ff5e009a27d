package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBroker(t *testing.T) {
	runBrokerContract(t, func(t *testing.T) Broker {
		return NewMemoryBroker(0)
	})
}

func TestMemoryBrokerNotifiesOnEnqueue(t *testing.T) {
	b := NewMemoryBroker(0)
	if _, err := b.Enqueue(context.Background(), testDocument("a.pdf")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected ready notification")
	}
}

func TestMemoryBrokerPrunesFinishedJobs(t *testing.T) {
	b := NewMemoryBroker(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	old, _ := b.Enqueue(ctx, testDocument("old.pdf"))
	b.ClaimNext(ctx)
	if err := b.Fail(ctx, old, "boom"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	waiting, _ := b.Enqueue(ctx, testDocument("waiting.pdf"))

	now = now.Add(2 * time.Minute)
	if _, err := b.Enqueue(ctx, testDocument("new.pdf")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := b.Get(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected finished job to be pruned, got %v", err)
	}
	if _, err := b.Get(ctx, waiting); err != nil {
		t.Fatalf("pending job must survive pruning: %v", err)
	}
}

func TestMemoryBrokerReturnsCopies(t *testing.T) {
	b := NewMemoryBroker(0)
	ctx := context.Background()
	id, _ := b.Enqueue(ctx, testDocument("a.pdf"))

	job, _ := b.Get(ctx, id)
	job.Document.Data[0] = 'X'
	job.State = StateFailed

	again, _ := b.Get(ctx, id)
	if again.State != StatePending || again.Document.Data[0] != '%' {
		t.Fatalf("stored job was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryBrokerHonoursContext(t *testing.T) {
	b := NewMemoryBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.ClaimNext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
