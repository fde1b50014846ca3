package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // distrolessイメージでもTIMEZONEを解決できるようにする

	"github.com/joho/godotenv"
)

// StoreDriver は永続化層の実装種別。
type StoreDriver string

const (
	// StorePostgres はPostgreSQLを使用する。
	StorePostgres StoreDriver = "postgres"
	// StoreMemory はインメモリストアを使用する。プロセス再起動で内容は失われる。
	StoreMemory StoreDriver = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver StoreDriver
	DatabaseURL string

	// Scoring
	Location         *time.Location
	RecordMaxRetries int

	// Challenge
	ChallengeTickInterval  time.Duration
	ReconcileInterval      time.Duration
	ReconcileMaxConcurrent int
	WeeklyGoalPoints       int
	WeeklyGoalTasks        int
	MonthlyGoalPoints      int
	MonthlyGoalTasks       int

	// Rate Limit (req/min)
	RateLimitGeneral    int
	RateLimitCompletion int

	// Logging
	LogLevel string

	// Server
	ServerPort   string
	UserIDHeader string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルの内容を環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、またはTIMEZONEが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StoreDriver = StoreDriver(strings.ToLower(getEnvString("STORE_DRIVER", string(StorePostgres))))
	switch cfg.StoreDriver {
	case StorePostgres, StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == StorePostgres {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	tz := getEnvString("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	// Optional fields with defaults
	cfg.RecordMaxRetries = getEnvPositiveInt("RECORD_MAX_RETRIES", 5)
	cfg.ChallengeTickInterval = getEnvDuration("CHALLENGE_TICK_INTERVAL", time.Hour)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 24*time.Hour)
	cfg.ReconcileMaxConcurrent = getEnvPositiveInt("RECONCILE_MAX_CONCURRENT", 4)
	cfg.WeeklyGoalPoints = getEnvInt("WEEKLY_GOAL_POINTS", 500)
	cfg.WeeklyGoalTasks = getEnvInt("WEEKLY_GOAL_TASKS", 20)
	cfg.MonthlyGoalPoints = getEnvInt("MONTHLY_GOAL_POINTS", 2000)
	cfg.MonthlyGoalTasks = getEnvInt("MONTHLY_GOAL_TASKS", 80)
	cfg.RateLimitGeneral = getEnvPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCompletion = getEnvPositiveInt("RATE_LIMIT_COMPLETION", 60)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.UserIDHeader = getEnvString("USER_ID_HEADER", "X-User-ID")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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

// getEnvPositiveInt は1以上の整数のみを受け付け、それ以外はデフォルト値を返す。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
