package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// processor は取得済みのジョブを変換し、結果をブローカーに記録します。
type processor struct {
	broker    Broker
	converter Converter
	logger    zerolog.Logger
}

// run は active のジョブを必ず終了状態にします。
// ctx がキャンセルされても結果の記録はキャンセルしません。
func (p *processor) run(ctx context.Context, job *Job) (err error) {
	log := p.logger.With().Str("job_id", job.ID).Str("filename", job.Document.Filename).Logger()
	recordCtx := context.WithoutCancel(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("conversion panicked")
			err = p.fail(recordCtx, log, job.ID, convert.MessageGenericFailure)
		}
	}()

	log.Info().Int64("bytes", job.Document.Size()).Msg("conversion started")

	result, convErr := p.converter.Convert(ctx, job.ID, job.Document)
	if convErr == nil && result == nil {
		convErr = errors.New("converter returned no result")
	}
	if convErr != nil {
		reason := failureReason(convErr)
		log.Warn().Err(convErr).Str("reason", reason).Dur("elapsed", time.Since(start)).Msg("conversion failed")
		return p.fail(recordCtx, log, job.ID, reason)
	}

	if err := p.broker.Complete(recordCtx, job.ID, result); err != nil {
		log.Error().Err(err).Msg("failed to record result")
		if failErr := p.fail(recordCtx, log, job.ID, convert.MessageGenericFailure); failErr != nil {
			return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
		}
		return nil
	}

	log.Info().
		Str("result", result.Filename).
		Int64("result_bytes", result.ByteLength).
		Int("pages", result.PageCount).
		Bool("ocr", result.OCRUsed).
		Dur("elapsed", time.Since(start)).
		Msg("conversion completed")
	return nil
}

func (p *processor) fail(ctx context.Context, log zerolog.Logger, jobID, reason string) error {
	if err := p.broker.Fail(ctx, jobID, reason); err != nil {
		log.Error().Err(err).Msg("failed to record failure")
		return fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}
	return nil
}

// failureReason はクライアントに返す失敗理由を返します。
func failureReason(err error) string {
	var convErr *convert.Error
	if errors.As(err, &convErr) {
		return convErr.Message
	}
	return convert.Classify(err)
}
