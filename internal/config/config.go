package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（トリガースケジューラの共有実行状態ストア）
	RedisURL string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Sync
	SyncInterval        time.Duration // バッチ同期の最小間隔
	SyncMaxConcurrent   int           // Source同期の最大並列数
	SyncVanishThreshold int           // ソフトデリートまでの連続ミス閾値
	SyncRunTTL          time.Duration // 実行中フラグのTTL（クラッシュ時の保険）

	// Purge
	PurgeRetentionDays int // tombstoneの保持日数

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitSync    int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Minute)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 5)
	cfg.SyncVanishThreshold = getEnvInt("SYNC_VANISH_THRESHOLD", 1)
	cfg.SyncRunTTL = getEnvDuration("SYNC_RUN_TTL", 30*time.Minute)
	cfg.PurgeRetentionDays = getEnvInt("PURGE_RETENTION_DAYS", 365)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if cfg.SyncVanishThreshold < 1 {
		return nil, fmt.Errorf("SYNC_VANISH_THRESHOLD must be >= 1, got %d", cfg.SyncVanishThreshold)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
