package convert

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// 強制終了後にパイプの解放を待つ時間
const killGrace = 2 * time.Second

// Outcome は外部プロセス実行の結果です。
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Runner は外部コマンドの実行を抽象化します（テストで差し替え可能）。
// 終了コードが 0 以外でもエラーにはせず Outcome に格納します。
// エラーを返すのは起動できなかった場合と呼び出し元のコンテキストが終了した場合だけです。
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Outcome, error)
}

// ExecRunner は os/exec でコマンドを実行します。
type ExecRunner struct{}

// Run はタイムアウト付きでコマンドを実行し、標準出力と標準エラーを取得します。
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	start := time.Now()
	err := cmd.Run()
	outcome := &Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return outcome, nil
	}
	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		return outcome, nil
	}

	// 孫プロセスが出力を握ったまま残った場合。コマンド自体は正常終了している
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
		return outcome, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
		return outcome, nil
	}
	return nil, err
}
