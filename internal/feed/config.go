package feed

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/nao1215/neighborly/internal/activity"
	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/pkg/config"
)

// Config はフィードサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DBPath はSQLiteデータベースのパス。
	DBPath string
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string
	// FrontendURL はCORSで許可するフロントエンドのURL。
	FrontendURL string
	// RedisURL はリフレッシュイベントを中継するRedisのURL。空の場合は中継しない。
	RedisURL string
	// RefreshChannel は中継に使うRedisチャンネル名。
	RefreshChannel string
	// RefreshDebounce はストリームの再取得を待つ時間。
	RefreshDebounce time.Duration
	// RefreshPollInterval はストリームの定期再取得の間隔。
	RefreshPollInterval time.Duration
	// GroupWindow はグループ化の時間枠（day または hour）。
	GroupWindow string
	// Timezone はグループ化の時間枠を区切るタイムゾーン。
	Timezone string
	// DefaultLimit はlimit未指定時のフィード件数。
	DefaultLimit int
	// LogLevel はログレベル。
	LogLevel string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "8087"),
		DBPath:              config.GetEnv("DB_PATH", "/data/feed.db"),
		JWTSecret:           config.GetEnv("JWT_SECRET", "dev-secret-key"),
		FrontendURL:         config.GetEnv("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:            config.GetEnv("REDIS_URL", ""),
		RefreshChannel:      config.GetEnv("REFRESH_CHANNEL", refresh.DefaultChannel),
		RefreshDebounce:     config.GetEnvDuration("REFRESH_DEBOUNCE", refresh.DefaultDebounce),
		RefreshPollInterval: config.GetEnvDuration("REFRESH_POLL_INTERVAL", refresh.DefaultPollInterval),
		GroupWindow:         config.GetEnv("FEED_GROUP_WINDOW", "day"),
		Timezone:            config.GetEnv("FEED_TIMEZONE", "UTC"),
		DefaultLimit:        config.GetEnvInt("FEED_DEFAULT_LIMIT", 50),
		LogLevel:            config.GetEnv("LOG_LEVEL", "info"),
	}
}

// Bucketer は設定された時間枠とタイムゾーンからグループ化の関数を作る。
func (c Config) Bucketer() (activity.Bucketer, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("FEED_TIMEZONEの解析に失敗: %w", err)
	}
	return activity.BucketerFor(c.GroupWindow, loc)
}
