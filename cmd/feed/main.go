// フィードサービスのエントリポイント。
// 各ドメインのレコードを取り込んでアクティビティに正規化し、近隣コミュニティごとのフィードを返す。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/neighborly/internal/feed"
	"github.com/nao1215/neighborly/pkg/config"
	"github.com/nao1215/neighborly/pkg/logging"
)

func main() {
	bootstrap := logging.NewWithService("feed", os.Getenv("LOG_LEVEL"))
	config.LoadEnv(bootstrap)

	cfg := feed.LoadConfig()
	logger := logging.NewWithService("feed", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := feed.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("フィードサーバーの初期化に失敗")
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.WithError(err).Warn("フィードサーバーの終了処理に失敗")
		}
	}()

	logger.WithFields(logging.Fields{"port": cfg.Port, "group_window": cfg.GroupWindow}).Info("フィードサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("フィードサービスの起動に失敗")
		return
	}
	logger.Info("フィードサービスを停止しました")
}
