// Package api は変換ジョブの投入と状態確認の HTTP ハンドラーを提供します。
package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
	"github.com/mdabidind/pdf-to-word-activa/internal/upload"
)

const (
	// 1リクエストで投入できるファイル数の上限
	defaultMaxBatchFiles = 10
	// ファイル以外のフォーム項目とマルチパートの境界に許す余裕
	formOverheadBytes = 1 << 20

	queuedMessage = "Your file is queued for conversion."
)

// Submitter はドキュメントを変換ジョブとして登録します。
type Submitter interface {
	Enqueue(ctx context.Context, doc convert.Document) (string, error)
}

// ConvertOptions は投入ハンドラーの設定です。
type ConvertOptions struct {
	MaxBatchFiles int
	Logger        zerolog.Logger
}

type batchEntry struct {
	Filename string `json:"filename"`
	JobID    string `json:"jobId"`
}

// ConvertHandler は POST /api/convert のハンドラーを返します。
// file で1件、files[] で複数件を受け付けます。複数件の場合は全件の検証が通ったときだけ登録します。
func ConvertHandler(validator *upload.Validator, submitter Submitter, opts ConvertOptions) gin.HandlerFunc {
	if opts.MaxBatchFiles <= 0 {
		opts.MaxBatchFiles = defaultMaxBatchFiles
	}
	bodyLimit := validator.MaxSize()*int64(opts.MaxBatchFiles) + formOverheadBytes

	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondWithError(c, &upload.Error{
					Code:    upload.CodeLimitExceeded,
					Message: "The request is too large.",
				})
				return
			}
			respondWithError(c, &upload.Error{
				Code:    upload.CodeInvalidInput,
				Message: "Please upload a file.",
			})
			return
		}
		defer form.RemoveAll()

		pages := strings.TrimSpace(c.PostForm("pages"))

		if batch := batchFiles(form); len(batch) > 0 {
			submitBatch(c, validator, submitter, opts, batch, pages)
			return
		}

		doc, err := validator.ValidateFile(singleFile(form), pages)
		if err != nil {
			respondWithError(c, err)
			return
		}

		jobID, err := submitter.Enqueue(c.Request.Context(), doc)
		if err != nil {
			opts.Logger.Error().Err(err).Str("filename", doc.Filename).Msg("failed to enqueue job")
			respondWithError(c, err)
			return
		}

		opts.Logger.Info().Str("job_id", jobID).Str("filename", doc.Filename).Int64("bytes", doc.Size()).Msg("job queued")
		c.JSON(http.StatusAccepted, gin.H{
			"jobId":   jobID,
			"message": queuedMessage,
		})
	}
}

func submitBatch(c *gin.Context, validator *upload.Validator, submitter Submitter, opts ConvertOptions, files []*multipart.FileHeader, pages string) {
	if len(files) > opts.MaxBatchFiles {
		respondWithError(c, &upload.Error{
			Code:    upload.CodeLimitExceeded,
			Message: "Too many files. Upload at most " + strconv.Itoa(opts.MaxBatchFiles) + " files at once.",
		})
		return
	}

	docs := make([]convert.Document, 0, len(files))
	for _, fh := range files {
		doc, err := validator.ValidateFile(fh, pages)
		if err != nil {
			var uerr *upload.Error
			if errors.As(err, &uerr) {
				c.JSON(statusForCode(uerr.Code), gin.H{
					"code":     uerr.Code,
					"message":  uerr.Message,
					"filename": fh.Filename,
				})
				return
			}
			respondWithError(c, err)
			return
		}
		docs = append(docs, doc)
	}

	entries := make([]batchEntry, 0, len(docs))
	for _, doc := range docs {
		jobID, err := submitter.Enqueue(c.Request.Context(), doc)
		if err != nil {
			opts.Logger.Error().Err(err).Str("filename", doc.Filename).Int("queued", len(entries)).Msg("failed to enqueue batch job")
			respondWithError(c, err)
			return
		}
		entries = append(entries, batchEntry{Filename: doc.Filename, JobID: jobID})
	}

	opts.Logger.Info().Int("count", len(entries)).Msg("batch queued")
	c.JSON(http.StatusAccepted, gin.H{
		"jobs":    entries,
		"message": queuedMessage,
	})
}

func singleFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, key := range []string{"file", "pdfFile"} {
		if files := form.File[key]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func batchFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["files[]"]; len(files) > 0 {
		return files
	}
	return form.File["files"]
}
