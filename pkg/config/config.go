package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the executor process.
type Config struct {
	Port     string
	GRPCAddr string

	// Storage
	DBPath       string
	StoreBackend string // "sqlite" (default) or "json"
	DataDir      string

	// Trading config file (hot reloaded)
	TradingConfigPath string

	// Binance
	BinanceAPIKey     string
	BinanceAPISecret  string
	BinanceRecvWindow int64

	// Tracker cadence
	TrackerInterval     time.Duration
	TrackerErrorBackoff time.Duration
	BalanceSyncInterval time.Duration

	// Pipeline
	QueueSize         int
	SubmitRateLimit   int
	SubmitRateWindow  time.Duration
	WorkerPollTimeout time.Duration

	// Notifications
	TelegramBotToken string
	TelegramChatID   string

	// Control API auth
	JWTSecret     string
	ControlAPIKey string

	// Scheduler (cron spec with seconds, UTC)
	DailyReportCron    string
	DailyLossCheckCron string

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		GRPCAddr:            getEnv("GRPC_ADDR", ":50051"),
		DBPath:              getEnv("DB_PATH", "./data/executor.db"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DataDir:             getEnv("DATA_DIR", "./data"),
		TradingConfigPath:   getEnv("TRADING_CONFIG_PATH", "./trading_config.yaml"),
		BinanceAPIKey:       os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:    os.Getenv("BINANCE_API_SECRET"),
		BinanceRecvWindow:   int64(getEnvInt("BINANCE_RECV_WINDOW", 5000)),
		TrackerInterval:     getEnvDuration("TRACKER_INTERVAL", 10*time.Second),
		TrackerErrorBackoff: getEnvDuration("TRACKER_ERROR_BACKOFF", 30*time.Second),
		BalanceSyncInterval: getEnvDuration("BALANCE_SYNC_INTERVAL", time.Minute),
		QueueSize:           getEnvInt("QUEUE_SIZE", 50),
		SubmitRateLimit:     getEnvInt("SUBMIT_RATE_LIMIT", 60),
		SubmitRateWindow:    getEnvDuration("SUBMIT_RATE_WINDOW", time.Minute),
		WorkerPollTimeout:   getEnvDuration("WORKER_POLL_TIMEOUT", time.Second),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:      os.Getenv("TELEGRAM_CHAT_ID"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		ControlAPIKey:       os.Getenv("CONTROL_API_KEY"),
		DailyReportCron:     getEnv("DAILY_REPORT_CRON", "0 0 0 * * *"),
		DailyLossCheckCron:  getEnv("DAILY_LOSS_CHECK_CRON", "0 */5 * * * *"),
		Language:            getEnv("LANGUAGE", "en"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs := getEnvFloat(key, -1); secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
