package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
	"github.com/mdabidind/pdf-to-word-activa/internal/jobs"
)

// ArchiveHandler は GET /api/archive?ids=a,b のハンドラーを返します。
// 指定したジョブがすべて完了している場合だけ、変換結果をまとめた ZIP を返します。
func ArchiveHandler(svc StatusLookup, maxFiles int, logger zerolog.Logger) gin.HandlerFunc {
	if maxFiles <= 0 {
		maxFiles = defaultMaxBatchFiles
	}

	return func(c *gin.Context) {
		ids := archiveIDs(c)
		if len(ids) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "Please specify at least one job id.",
			})
			return
		}
		if len(ids) > maxFiles {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": "Too many jobs. Request at most " + strconv.Itoa(maxFiles) + " jobs at once.",
			})
			return
		}

		results := make([]*convert.Result, 0, len(ids))
		for _, id := range ids {
			status, err := svc.Lookup(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, jobs.ErrNotFound) {
					c.JSON(http.StatusNotFound, gin.H{
						"code":    "JOB_NOT_FOUND",
						"message": "Job not found",
						"jobId":   id,
					})
					return
				}
				respondWithError(c, err)
				return
			}
			if status.State != jobs.StateCompleted || status.Result == nil {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_RESULT_NOT_FOUND",
					"message": "The converted document is not available.",
					"jobId":   id,
					"state":   status.State,
				})
				return
			}
			results = append(results, status.Result)
		}

		data, err := convert.Archive(results)
		if err != nil {
			logger.Error().Err(err).Int("count", len(results)).Msg("failed to build archive")
			respondWithError(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+convert.ArchiveFilename+`"`)
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "application/zip", data)
	}
}

// archiveIDs は ids=a,b と ids=a&ids=b の両方の形式を受け付け、重複を除きます。
func archiveIDs(c *gin.Context) []string {
	seen := map[string]bool{}
	var ids []string
	for _, raw := range c.QueryArray("ids") {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
