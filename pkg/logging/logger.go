// Package logging はlogrusベースの構造化ロガーを提供する。
//
// 全サービスでJSON形式のログを出力し、service フィールドで出力元を識別する。
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger はコンポーネントが受け取るロガーの型。
// *logrus.Logger と *logrus.Entry のどちらも満たす。
type Logger = logrus.FieldLogger

// Fields は構造化ログのフィールド。
type Fields = logrus.Fields

// ParseLevel はLOG_LEVEL形式の文字列をログレベルに変換する。
// 不明な値はInfoとして扱う。
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// New はJSONフォーマッタを設定したロガーを生成する。
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// NewWithService はservice フィールドを付与したロガーを生成する。
func NewWithService(serviceName, level string) Logger {
	return New(level).WithField("service", serviceName)
}

// Discard は出力を破棄するロガーを返す。
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
