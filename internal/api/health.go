package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler はヘルスチェックのハンドラーを返します。
func HealthHandler(backend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "pdf-to-word-api",
			"queue":   backend,
		})
	}
}
