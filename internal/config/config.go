// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// キューのバックエンド種別
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendAsynq    = "asynq"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port            string        // APIサーバーのポート番号
	GinMode         string        // Ginの実行モード (debug, release, test)
	LogLevel        string        // zerolog のログレベル
	ShutdownTimeout time.Duration // グレースフルシャットダウンの待ち時間

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize     int64 // 単一ファイルの最大サイズ（バイト）
	VerifySignature bool  // 拡張子に加えてファイルシグネチャも検査するか
	MaxBatchFiles   int   // 1リクエストで投入できるファイル数

	// ジョブ/キュー設定
	QueueBackend       string        // memory, redis, postgres, asynq
	QueueRedisURL      string        // Redis接続URL（redis / asynq）
	DatabaseURL        string        // PostgreSQL接続URL（postgres）
	JobRetention       time.Duration // 終了したジョブを保持する期間（0 は無期限）
	WorkerConcurrency  int           // 同時に処理するジョブ数
	WorkerPollInterval time.Duration // 待機中ジョブがないときの再確認間隔
	EmbeddedWorkers    bool          // APIプロセス内でワーカーを起動するか

	// 変換処理設定
	WorkspaceDir           string        // 作業ディレクトリのルート
	WorkspaceFallbackDir   string        // 作業ディレクトリが使えない場合の退避先
	ConverterCommand       string        // 変換コマンド（入力・出力パスが末尾に付与される）
	ConverterTimeout       time.Duration // 変換プロセスのタイムアウト
	ConverterSuccessMarker string        // 成功時に標準出力へ出力される文字列
	ConverterOCRMarker     string        // OCR使用時に標準出力へ出力される文字列
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ファイル制限
		MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 20*1024*1024), // 20MB
		VerifySignature: getEnvAsBool("VERIFY_SIGNATURE", true),
		MaxBatchFiles:   getEnvAsInt("MAX_BATCH_FILES", 10),

		// ジョブ/キュー設定
		QueueBackend:       strings.ToLower(getEnv("QUEUE_BACKEND", BackendMemory)),
		QueueRedisURL:      getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JobRetention:       getEnvAsDuration("JOB_RETENTION", 0),
		WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		EmbeddedWorkers:    getEnvAsBool("EMBEDDED_WORKERS", true),

		// 変換処理設定
		WorkspaceDir:           getEnv("WORKSPACE_DIR", "/var/www/temp_pdf2word"),
		WorkspaceFallbackDir:   getEnv("WORKSPACE_FALLBACK_DIR", filepath.Join(os.TempDir(), "pdf2word_temp")),
		ConverterCommand:       getEnv("CONVERTER_COMMAND", "/var/www/venv/bin/python scripts/convert_pdf_to_docx.py"),
		ConverterTimeout:       getEnvAsDuration("CONVERTER_TIMEOUT", 120*time.Second),
		ConverterSuccessMarker: getEnv("CONVERTER_SUCCESS_MARKER", "success"),
		ConverterOCRMarker:     getEnv("CONVERTER_OCR_MARKER", "OCR"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendMemory, BackendRedis, BackendAsynq:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres queue backend")
		}
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND: %s", c.QueueBackend)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.MaxBatchFiles <= 0 {
		return fmt.Errorf("MAX_BATCH_FILES must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.ConverterTimeout <= 0 {
		return fmt.Errorf("CONVERTER_TIMEOUT must be positive")
	}
	if c.ConverterSuccessMarker == "" {
		return fmt.Errorf("CONVERTER_SUCCESS_MARKER must not be empty")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if strings.TrimSpace(c.ConverterCommand) == "" {
			return fmt.Errorf("CONVERTER_COMMAND is required in release mode")
		}
		if (c.QueueBackend == BackendRedis || c.QueueBackend == BackendAsynq) && c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.QueueBackend == BackendMemory && !c.EmbeddedWorkers {
			return fmt.Errorf("EMBEDDED_WORKERS must be enabled for the memory queue backend")
		}
	}

	return nil
}

// ConverterArgs は CONVERTER_COMMAND を実行ファイルと引数に分解します。
func (c *Config) ConverterArgs() (string, []string) {
	fields := strings.Fields(c.ConverterCommand)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 90s, 2m）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
