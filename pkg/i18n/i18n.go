package i18n

import (
	"reflect"
	"strings"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable operator-facing strings.
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	UsingJSONStore     string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	StateLoadFailed    string
	APIServerError     string
	RPCServerError     string
	HostID             string

	// Trading
	PaperMode          string
	LiveMode           string
	SpotDisabled       string
	TradingConfigLoad  string
	TradingConfigSaved string
	CredentialsMissing string
	ClockSynced        string
	ClockSyncFailed    string

	// Services
	PipelineStarted   string
	TrackerStarted    string
	SchedulerFailed   string
	TelegramEnabled   string
	TelegramDisabled  string
	StartupNotice     string
	ShutdownNotice    string
	PositionsRestored string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting signal executor...",
	ConfigLoaded:       "Config loaded (Port: %s, gRPC: %s)",
	UsingDBPath:        "Using DB path: %s",
	UsingJSONStore:     "Using JSON store in %s",
	ServerListening:    "Control API listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete.",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	StateLoadFailed:    "Failed to load state: %v",
	APIServerError:     "API server error: %v",
	RPCServerError:     "gRPC server error: %v",
	HostID:             "Instance id: %s",

	// Trading
	PaperMode:          "PAPER mode: orders go to the Binance testnet",
	LiveMode:           "LIVE mode: orders go to production Binance",
	SpotDisabled:       "Spot trading disabled (paper mode)",
	TradingConfigLoad:  "Trading config v%d loaded from %s",
	TradingConfigSaved: "Trading config v%d applied",
	CredentialsMissing: "BINANCE_API_KEY / BINANCE_API_SECRET not set; signed requests will fail",
	ClockSynced:        "Server clock offset: %v",
	ClockSyncFailed:    "Initial clock sync failed: %v",

	// Services
	PipelineStarted:   "Execution pipeline started (queue %d)",
	TrackerStarted:    "Position tracker started (interval %v)",
	SchedulerFailed:   "Scheduler setup failed: %v",
	TelegramEnabled:   "Telegram notifications enabled",
	TelegramDisabled:  "Telegram not configured; notifications are logged only",
	StartupNotice:     "🚀 Signal executor started (%s mode, instance %s)",
	ShutdownNotice:    "⏹ Signal executor stopping",
	PositionsRestored: "Restored %d tracked positions and %d trades",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動訊號執行器...",
	ConfigLoaded:       "設定已載入（埠號：%s，gRPC：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	UsingJSONStore:     "使用 JSON 儲存目錄：%s",
	ServerListening:    "控制 API 監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "關閉完成。",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	StateLoadFailed:    "載入狀態失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",
	RPCServerError:     "gRPC 伺服器錯誤：%v",
	HostID:             "執行個體識別碼：%s",

	// Trading
	PaperMode:          "模擬模式：委託送往 Binance 測試網",
	LiveMode:           "實盤模式：委託送往正式 Binance",
	SpotDisabled:       "現貨交易已停用（模擬模式）",
	TradingConfigLoad:  "交易設定 v%d 已自 %s 載入",
	TradingConfigSaved: "交易設定 v%d 已套用",
	CredentialsMissing: "未設定 BINANCE_API_KEY / BINANCE_API_SECRET，簽名請求將失敗",
	ClockSynced:        "伺服器時間偏移：%v",
	ClockSyncFailed:    "初次時間同步失敗：%v",

	// Services
	PipelineStarted:   "執行管線已啟動（佇列 %d）",
	TrackerStarted:    "持倉追蹤已啟動（間隔 %v）",
	SchedulerFailed:   "排程設定失敗：%v",
	TelegramEnabled:   "Telegram 通知已啟用",
	TelegramDisabled:  "未設定 Telegram，通知僅寫入日誌",
	StartupNotice:     "🚀 訊號執行器已啟動（%s 模式，執行個體 %s）",
	ShutdownNotice:    "⏹ 訊號執行器停止中",
	PositionsRestored: "已還原 %d 筆追蹤持倉與 %d 筆交易紀錄",
}

func init() {
	messages = &messagesEN
}

// ParseLanguage maps a LANGUAGE setting onto a supported language.
func ParseLanguage(s string) Language {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "zh") {
		return LangZH
	}
	return LangEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
