// 通知サービスのエントリポイント。
// テンプレートから通知を作成し、既読・アーカイブ状態を管理する。
// 状態が変わるとリフレッシュイベントを発行し、WebSocketで購読中の画面へ最新の一覧を送る。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/neighborly/internal/notification"
	"github.com/nao1215/neighborly/pkg/config"
	"github.com/nao1215/neighborly/pkg/logging"
)

func main() {
	bootstrap := logging.NewWithService("notification", os.Getenv("LOG_LEVEL"))
	config.LoadEnv(bootstrap)

	cfg := notification.LoadConfig()
	logger := logging.NewWithService("notification", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := notification.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("通知サーバーの初期化に失敗")
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.WithError(err).Warn("通知サーバーの終了処理に失敗")
		}
	}()

	logger.WithField("port", cfg.Port).Info("通知サービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("通知サービスの起動に失敗")
		return
	}
	logger.Info("通知サービスを停止しました")
}
