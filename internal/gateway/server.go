package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
	"github.com/nao1215/neighborly/pkg/middleware"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg Config
	// notification は通知サービスへのプロキシ。
	notification *httputil.ReverseProxy
	// feed はフィードサービスへのプロキシ。
	feed   *httputil.ReverseProxy
	logger logging.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg Config, logger logging.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	var err error
	if s.notification, err = s.newProxy("notification", cfg.NotificationURL); err != nil {
		return nil, err
	}
	if s.feed, err = s.newProxy("feed", cfg.FeedURL); err != nil {
		return nil, err
	}

	m := metrics.New("neighborly_gateway")
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(m.Middleware())
	s.router = router
	s.setupRoutes()
	router.GET("/metrics", gin.WrapH(m.Handler()))

	return s, nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		// 通知
		api.GET("/notifications", s.forward(s.notification))
		api.GET("/notifications/unread-count", s.forward(s.notification))
		api.GET("/notifications/stream", s.forward(s.notification))
		api.PUT("/notifications/read-all", s.forward(s.notification))
		api.PUT("/notifications/:id/read", s.forward(s.notification))
		api.PUT("/notifications/:id/archive", s.forward(s.notification))
		api.GET("/templates", s.forward(s.notification))

		// フィード
		api.GET("/feed", s.forward(s.feed))
		api.GET("/feed/stream", s.forward(s.feed))
		api.GET("/activities/:id", s.forward(s.feed))
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// forward はリクエストを内部サービスに転送するハンドラを返す。
// 検証済みのユーザーIDをX-User-IDヘッダーとして付与する。
func (s *Server) forward(proxy *httputil.ReverseProxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Set("X-User-ID", middleware.GetUserID(c))
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// newProxy は内部サービスへのリバースプロキシを生成する。
// WebSocketのアップグレードもそのまま転送される。
func (s *Server) newProxy(name, rawURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%sサービスのURLが不正です: %q", name, rawURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WithError(err).WithFields(logging.Fields{
				"service": name,
				"path":    r.URL.Path,
			}).Error("内部サービスとの通信に失敗しました")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"内部サービスとの通信に失敗しました"}`))
		},
	}, nil
}
