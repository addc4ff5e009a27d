package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mdabidind/pdf-to-word-activa/internal/jobs"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// StatusLookup はジョブの状態を返します。
type StatusLookup interface {
	Lookup(ctx context.Context, id string) (*jobs.Status, error)
}

// JobStatusHandler は GET /api/jobs/:id のハンドラーを返します。
func JobStatusHandler(svc StatusLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := lookupJob(c, svc)
		if !ok {
			return
		}

		payload := gin.H{
			"jobId":     status.JobID,
			"state":     status.State,
			"createdAt": status.CreatedAt,
		}
		if status.CompletedAt != nil {
			payload["completedAt"] = status.CompletedAt
		}

		switch status.State {
		case jobs.StateCompleted:
			if status.Result == nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "Job completed but no result found.",
				})
				return
			}
			payload["result"] = status.Result
			payload["downloadUrl"] = fmt.Sprintf("/api/jobs/%s/download", url.PathEscape(status.JobID))
		case jobs.StateFailed:
			payload["message"] = "Conversion failed: " + status.FailureReason
			payload["error"] = gin.H{"message": status.FailureReason}
		default:
			payload["message"] = "Job is still processing or queued"
		}

		c.JSON(http.StatusOK, payload)
	}
}

// JobDownloadHandler は GET /api/jobs/:id/download のハンドラーを返します。
// 変換済みの DOCX をデコードして返します。
func JobDownloadHandler(svc StatusLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := lookupJob(c, svc)
		if !ok {
			return
		}
		if status.State != jobs.StateCompleted || status.Result == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_RESULT_NOT_FOUND",
				"message": "The converted document is not available.",
			})
			return
		}

		content, err := status.Result.Content()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to read the converted document.",
			})
			return
		}

		filename := status.Result.Filename
		encodedName := url.PathEscape(filename)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", asciiFilename(filename), encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", status.JobID)
		c.Data(http.StatusOK, docxContentType, content)
	}
}

func lookupJob(c *gin.Context, svc StatusLookup) (*jobs.Status, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "Please specify a job id.",
		})
		return nil, false
	}

	status, err := svc.Lookup(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "Job not found",
			})
			return nil, false
		}
		respondWithError(c, err)
		return nil, false
	}
	return status, true
}

// asciiFilename は filename パラメーター用に ASCII 以外と引用符を置き換えます。
func asciiFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}
