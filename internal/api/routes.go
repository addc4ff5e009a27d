package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/upload"
)

// Deps はルーティングに必要な依存関係です。
type Deps struct {
	Validator     *upload.Validator
	Submitter     Submitter
	Status        StatusLookup
	QueueBackend  string
	MaxBatchFiles int
	Logger        zerolog.Logger
}

// RegisterRoutes はヘルスチェックと /api 以下のルートを登録します。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", HealthHandler(deps.QueueBackend))

	api := router.Group("/api")
	{
		api.POST("/convert", ConvertHandler(deps.Validator, deps.Submitter, ConvertOptions{
			MaxBatchFiles: deps.MaxBatchFiles,
			Logger:        deps.Logger,
		}))
		api.GET("/jobs/:id", JobStatusHandler(deps.Status))
		api.GET("/jobs/:id/download", JobDownloadHandler(deps.Status))
		api.GET("/archive", ArchiveHandler(deps.Status, deps.MaxBatchFiles, deps.Logger))
		api.POST("/inspect", InspectHandler(deps.Validator))
	}
}
