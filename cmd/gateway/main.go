// API Gatewayサービスのエントリポイント。
// JWTを検証し、通知サービスとフィードサービスへリクエストを転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/neighborly/internal/gateway"
	"github.com/nao1215/neighborly/pkg/config"
	"github.com/nao1215/neighborly/pkg/logging"
)

func main() {
	bootstrap := logging.NewWithService("gateway", os.Getenv("LOG_LEVEL"))
	config.LoadEnv(bootstrap)

	cfg := gateway.LoadConfig()
	logger := logging.NewWithService("gateway", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Gatewayサーバーの初期化に失敗")
	}

	logger.WithField("port", cfg.Port).Info("Gatewayサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("Gatewayサービスの起動に失敗")
		return
	}
	logger.Info("Gatewayサービスを停止しました")
}
