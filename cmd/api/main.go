// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mdabidind/pdf-to-word-activa/internal/api"
	"github.com/mdabidind/pdf-to-word-activa/internal/config"
	"github.com/mdabidind/pdf-to-word-activa/internal/logger"
	"github.com/mdabidind/pdf-to-word-activa/internal/upload"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(gin.ReleaseMode, "info")
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	log := logger.New(cfg.GinMode, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("api server stopped")
		os.Exit(1)
	}
}

// run はサーバーを起動し、終了するまでブロックします。戻る前にジョブキューを閉じます。
func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := setupJobs(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to set up %s job queue: %w", cfg.QueueBackend, err)
	}
	defer queue.Close()

	router := gin.New()
	router.Use(logger.Middleware(log), gin.Recovery())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	// ダウンロード時のファイル名をフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, queue, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", srv.Addr).Str("mode", cfg.GinMode).Str("backend", cfg.QueueBackend).Msg("starting API server")
	return serve(ctx, srv, cfg.ShutdownTimeout, log)
}

// serve は ctx が終了するまで srv を動かし、その後グレースフルに停止します。
// 待ち受けに失敗した場合はそのエラーを返します。
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// setupRoutes は API のルーティングを行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, queue *jobQueue, log zerolog.Logger) {
	api.RegisterRoutes(router, api.Deps{
		Validator:     upload.NewValidator(cfg.MaxFileSize, cfg.VerifySignature),
		Submitter:     queue.submitter,
		Status:        queue.status,
		QueueBackend:  cfg.QueueBackend,
		MaxBatchFiles: cfg.MaxBatchFiles,
		Logger:        log.With().Str("component", "api").Logger(),
	})
}
