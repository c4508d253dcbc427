// Package config は環境変数ベースの設定読み込みを提供する。
//
// ローカル開発では .env / .env.dev を読み込み、それ以外はプロセス環境変数を使う。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nao1215/neighborly/pkg/logging"
)

// LoadEnv はカレントディレクトリの .env ファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。
func LoadEnv(logger logging.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("%s の読み込みに失敗", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger == nil {
		return
	}
	if len(loaded) == 0 {
		logger.Debug("envファイルは読み込まれませんでした。プロセス環境変数を使用します")
		return
	}
	logger.Debugf("envファイルを読み込みました: %s", strings.Join(loaded, ", "))
}

// GetEnv は環境変数を取得する。未設定または空の場合はdefaultValueを返す。
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt は整数の環境変数を取得する。
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool は真偽値の環境変数を取得する。
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration は time.ParseDuration 形式（例: "300ms"）の環境変数を取得する。
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
