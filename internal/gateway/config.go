package gateway

import "github.com/nao1215/neighborly/pkg/config"

// Config はGatewayサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string
	// FrontendURL はCORSで許可するフロントエンドのURL。
	FrontendURL string
	// NotificationURL は通知サービスのベースURL。
	NotificationURL string
	// FeedURL はフィードサービスのベースURL。
	FeedURL string
	// LogLevel はログレベル。
	LogLevel string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	return Config{
		Port:            config.GetEnv("PORT", "8080"),
		JWTSecret:       config.GetEnv("JWT_SECRET", "dev-secret-key"),
		FrontendURL:     config.GetEnv("FRONTEND_URL", "http://localhost:3000"),
		NotificationURL: config.GetEnv("NOTIFICATION_URL", "http://localhost:8086"),
		FeedURL:         config.GetEnv("FEED_URL", "http://localhost:8087"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
	}
}
