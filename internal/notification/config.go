package notification

import (
	"time"

	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/pkg/config"
)

// Config は通知サービスの設定。
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
	// GroupsURL はグループサービスのベースURL。
	GroupsURL string
	// LogLevel はログレベル。
	LogLevel string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "8086"),
		DBPath:              config.GetEnv("DB_PATH", "/data/notification.db"),
		JWTSecret:           config.GetEnv("JWT_SECRET", "dev-secret-key"),
		FrontendURL:         config.GetEnv("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:            config.GetEnv("REDIS_URL", ""),
		RefreshChannel:      config.GetEnv("REFRESH_CHANNEL", refresh.DefaultChannel),
		RefreshDebounce:     config.GetEnvDuration("REFRESH_DEBOUNCE", refresh.DefaultDebounce),
		RefreshPollInterval: config.GetEnvDuration("REFRESH_POLL_INTERVAL", refresh.DefaultPollInterval),
		GroupsURL:           config.GetEnv("GROUPS_URL", "http://localhost:8090"),
		LogLevel:            config.GetEnv("LOG_LEVEL", "info"),
	}
}
