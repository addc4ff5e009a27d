package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

func testDocument(name string) convert.Document {
	return convert.Document{Filename: name, Data: []byte("%PDF-1.4 " + name), Pages: "1-2"}
}

func testResult() *convert.Result {
	return &convert.Result{
		OriginalFilename: "a.pdf",
		Filename:         "a.docx",
		ContentBase64:    "UEsDBA==",
		ByteLength:       4,
		PageCount:        1,
		OCRUsed:          true,
	}
}

// runBrokerContract は全てのブローカー実装が満たすべき振る舞いを検証します。
func runBrokerContract(t *testing.T, newBroker func(t *testing.T) Broker) {
	t.Run("EnqueueThenGet", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		doc := testDocument("a.pdf")

		id, err := b.Enqueue(ctx, doc)
		if err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		if id == "" {
			t.Fatal("expected job id")
		}
		doc.Data[0] = 'X'

		job, err := b.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if job.State != StatePending {
			t.Fatalf("unexpected state: %s", job.State)
		}
		if job.Document.Filename != "a.pdf" || job.Document.Pages != "1-2" {
			t.Fatalf("unexpected document: %+v", job.Document)
		}
		if !bytes.Equal(job.Document.Data, []byte("%PDF-1.4 a.pdf")) {
			t.Fatalf("payload changed after enqueue: %q", job.Document.Data)
		}
		if job.CreatedAt.IsZero() {
			t.Fatal("expected createdAt")
		}
		if job.Result != nil || job.FailureReason != "" || job.CompletedAt != nil {
			t.Fatalf("pending job must not carry an outcome: %+v", job)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		b := newBroker(t)
		if _, err := b.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ClaimNextEmpty", func(t *testing.T) {
		b := newBroker(t)
		if _, err := b.ClaimNext(context.Background()); !errors.Is(err, ErrNoPendingJob) {
			t.Fatalf("expected ErrNoPendingJob, got %v", err)
		}
	})

	t.Run("ClaimNextFIFO", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		first, _ := b.Enqueue(ctx, testDocument("1.pdf"))
		second, _ := b.Enqueue(ctx, testDocument("2.pdf"))

		job, err := b.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("ClaimNext returned error: %v", err)
		}
		if job.ID != first {
			t.Fatalf("expected %s first, got %s", first, job.ID)
		}
		if job.State != StateActive || job.StartedAt == nil {
			t.Fatalf("claimed job not active: %+v", job)
		}
		job, err = b.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("ClaimNext returned error: %v", err)
		}
		if job.ID != second {
			t.Fatalf("expected %s second, got %s", second, job.ID)
		}
		if _, err := b.ClaimNext(ctx); !errors.Is(err, ErrNoPendingJob) {
			t.Fatalf("expected ErrNoPendingJob, got %v", err)
		}
	})

	t.Run("ClaimByID", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		id, _ := b.Enqueue(ctx, testDocument("a.pdf"))

		job, err := b.Claim(ctx, id)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if job.State != StateActive {
			t.Fatalf("unexpected state: %s", job.State)
		}
		if _, err := b.Claim(ctx, id); !errors.Is(err, ErrNotClaimable) {
			t.Fatalf("expected ErrNotClaimable, got %v", err)
		}
		if _, err := b.ClaimNext(ctx); !errors.Is(err, ErrNoPendingJob) {
			t.Fatalf("claimed job must leave the pending queue, got %v", err)
		}
		if _, err := b.Claim(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Complete", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		id, _ := b.Enqueue(ctx, testDocument("a.pdf"))
		if _, err := b.ClaimNext(ctx); err != nil {
			t.Fatalf("ClaimNext returned error: %v", err)
		}
		if err := b.Complete(ctx, id, testResult()); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}

		job, err := b.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if job.State != StateCompleted || job.CompletedAt == nil {
			t.Fatalf("unexpected job: %+v", job)
		}
		if job.Result == nil || *job.Result != *testResult() {
			t.Fatalf("unexpected result: %+v", job.Result)
		}
		if job.FailureReason != "" {
			t.Fatalf("completed job must not carry a failure reason: %q", job.FailureReason)
		}
	})

	t.Run("Fail", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		id, _ := b.Enqueue(ctx, testDocument("a.pdf"))
		if _, err := b.Claim(ctx, id); err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if err := b.Fail(ctx, id, "Conversion failed."); err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		job, err := b.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if job.State != StateFailed || job.FailureReason != "Conversion failed." {
			t.Fatalf("unexpected job: %+v", job)
		}
		if job.Result != nil {
			t.Fatal("failed job must not carry a result")
		}
	})

	t.Run("TerminalStatesAreFinal", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		id, _ := b.Enqueue(ctx, testDocument("a.pdf"))

		if err := b.Complete(ctx, id, testResult()); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("pending job must not complete, got %v", err)
		}
		if _, err := b.Claim(ctx, id); err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if err := b.Fail(ctx, id, "boom"); err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		if err := b.Complete(ctx, id, testResult()); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("failed job must not complete, got %v", err)
		}
		if err := b.Fail(ctx, id, "again"); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("failed job must not fail twice, got %v", err)
		}
		if _, err := b.Claim(ctx, id); !errors.Is(err, ErrNotClaimable) {
			t.Fatalf("failed job must not be claimed, got %v", err)
		}
		if err := b.Fail(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		job, _ := b.Get(ctx, id)
		if job.FailureReason != "boom" {
			t.Fatalf("terminal job was modified: %+v", job)
		}
	})

	t.Run("ConcurrentClaimsAreExclusive", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()
		const total = 40
		for i := 0; i < total; i++ {
			if _, err := b.Enqueue(ctx, testDocument("c.pdf")); err != nil {
				t.Fatalf("Enqueue returned error: %v", err)
			}
		}

		var (
			mu      sync.Mutex
			claimed = make(map[string]int)
			wg      sync.WaitGroup
		)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := b.ClaimNext(ctx)
					if errors.Is(err, ErrNoPendingJob) {
						return
					}
					if err != nil {
						t.Errorf("ClaimNext returned error: %v", err)
						return
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if len(claimed) != total {
			t.Fatalf("expected %d distinct claims, got %d", total, len(claimed))
		}
		for id, n := range claimed {
			if n != 1 {
				t.Fatalf("job %s claimed %d times", id, n)
			}
		}
	})
}
