// Package convert は外部コンバーターを使って PDF を Word 文書に変換します。
package convert

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout       = 120 * time.Second
	defaultSuccessMarker = "success"
	defaultOCRMarker     = "OCR"

	// ログに残す標準出力・標準エラーの上限
	maxLoggedOutput = 8 << 10
)

// Options は Executor の設定です。
type Options struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	SuccessMarker string
	OCRMarker     string
	WorkspaceDir  string
	FallbackDir   string
	Runner        Runner
	Logger        zerolog.Logger
}

// Executor は1件のドキュメントを変換し、成果物を返します。
type Executor struct {
	command       string
	args          []string
	timeout       time.Duration
	successMarker string
	ocrMarker     string
	runner        Runner
	workspaces    *workspaces
	logger        zerolog.Logger
	now           func() time.Time
}

// NewExecutor は Executor を初期化します。
func NewExecutor(opts Options) (*Executor, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("converter command is required")
	}
	if strings.TrimSpace(opts.WorkspaceDir) == "" {
		return nil, errors.New("workspace dir is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.SuccessMarker == "" {
		opts.SuccessMarker = defaultSuccessMarker
	}
	if opts.OCRMarker == "" {
		opts.OCRMarker = defaultOCRMarker
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}

	e := &Executor{
		command:       opts.Command,
		args:          append([]string(nil), opts.Args...),
		timeout:       opts.Timeout,
		successMarker: opts.SuccessMarker,
		ocrMarker:     opts.OCRMarker,
		runner:        opts.Runner,
		logger:        opts.Logger,
		now:           time.Now,
	}
	e.workspaces = &workspaces{
		primary:  opts.WorkspaceDir,
		fallback: opts.FallbackDir,
		logger:   opts.Logger,
		now:      func() time.Time { return e.now() },
	}
	return e, nil
}

// Convert は作業ディレクトリを確保してコンバーターを実行し、成果物を返します。
// 失敗時は分類済みのメッセージを持つ *Error を返します。作業ディレクトリは結果にかかわらず削除されます。
func (e *Executor) Convert(ctx context.Context, jobID string, doc Document) (_ *Result, err error) {
	log := e.logger.With().Str("job_id", jobID).Logger()
	defer func() {
		if err != nil {
			err = classify(err)
		}
	}()

	ws, err := e.workspaces.acquire(jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cleanupErr := ws.release(); cleanupErr != nil {
			log.Warn().Err(cleanupErr).Str("dir", ws.dir).Msg("failed to clean up workspace")
		}
	}()

	pageCount, err := writeInput(ws.inputPath, doc)
	if err != nil {
		return nil, err
	}

	args := append(append([]string(nil), e.args...), ws.inputPath, ws.outputPath)
	outcome, err := e.runner.Run(ctx, e.timeout, e.command, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(CodeConversionFailed, "failed to start converter: "+err.Error(), err)
	}
	e.logOutcome(log, outcome)

	if outcome.TimedOut {
		return nil, newError(CodeConversionTimeout, fmt.Sprintf("converter timeout after %s", e.timeout), nil)
	}
	// 成功判定は標準出力のマーカーを正とする（終了コード 0 だけでは成功としない）
	if outcome.ExitCode != 0 || !strings.Contains(outcome.Stdout, e.successMarker) {
		return nil, newError(CodeConversionFailed, "PDF to DOCX conversion failed. Details: "+failureDetails(outcome), nil)
	}

	data, err := os.ReadFile(ws.outputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(CodeOutputMissing, MessageOutputMissing, err)
		}
		return nil, fmt.Errorf("failed to read output file: %w", err)
	}

	result := &Result{
		OriginalFilename: doc.Filename,
		Filename:         ResultFilename(doc.Filename),
		ContentBase64:    base64.StdEncoding.EncodeToString(data),
		ByteLength:       int64(len(data)),
		PageCount:        pageCount,
		OCRUsed:          strings.Contains(outcome.Stdout, e.ocrMarker),
	}
	log.Info().
		Str("filename", result.Filename).
		Int64("bytes", result.ByteLength).
		Bool("ocr", result.OCRUsed).
		Msg("conversion completed")
	return result, nil
}

func (e *Executor) logOutcome(log zerolog.Logger, o *Outcome) {
	event := log.Debug()
	if o.TimedOut || o.ExitCode != 0 {
		event = log.Warn()
	}
	event.
		Str("cmd", e.command).
		Int("exit_code", o.ExitCode).
		Bool("timed_out", o.TimedOut).
		Int64("duration_ms", o.Duration.Milliseconds()).
		Str("stdout", truncate(o.Stdout, maxLoggedOutput)).
		Str("stderr", truncate(o.Stderr, maxLoggedOutput)).
		Msg("converter finished")
}

func failureDetails(o *Outcome) string {
	if s := strings.TrimSpace(o.Stdout); s != "" {
		return s
	}
	if s := strings.TrimSpace(o.Stderr); s != "" {
		return s
	}
	return fmt.Sprintf("converter exited with status %d", o.ExitCode)
}
