// Package jobs は変換ジョブのキューと状態管理、ワーカーを提供します。
package jobs

import (
	"context"
	"errors"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

var (
	// ErrNotFound は指定されたジョブが存在しないことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrNoPendingJob は待機中のジョブがないことを表します。
	ErrNoPendingJob = errors.New("no pending job")
	// ErrNotClaimable はジョブが pending ではないため取得できないことを表します。
	ErrNotClaimable = errors.New("job is not pending")
	// ErrInvalidTransition は許可されていない状態遷移を表します。
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Broker はジョブ状態の唯一の保存先です。
// 同じジョブを二つのワーカーが取得しないことは実装側が保証します。
type Broker interface {
	// Enqueue はドキュメントを pending ジョブとして登録し、ID を返します。
	Enqueue(ctx context.Context, doc convert.Document) (string, error)
	// ClaimNext は最も古い pending ジョブを active にして返します。
	// 待機中のジョブがなければ ErrNoPendingJob を返し、ブロックしません。
	ClaimNext(ctx context.Context) (*Job, error)
	// Claim は指定したジョブを pending から active にします。
	Claim(ctx context.Context, id string) (*Job, error)
	// Complete は active のジョブを completed にします。
	Complete(ctx context.Context, id string, result *convert.Result) error
	// Fail は active のジョブを failed にします。
	Fail(ctx context.Context, id string, reason string) error
	// Get はジョブの現在状態を返します。
	Get(ctx context.Context, id string) (*Job, error)
}

// Notifier は新しいジョブが登録されたことをワーカーに知らせるブローカーが実装します。
type Notifier interface {
	Ready() <-chan struct{}
}

// Converter はジョブのドキュメントを変換します。
type Converter interface {
	Convert(ctx context.Context, jobID string, doc convert.Document) (*convert.Result, error)
}
