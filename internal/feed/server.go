package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nao1215/neighborly/internal/activity"
	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/pkg/database"
	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
	"github.com/nao1215/neighborly/pkg/middleware"
)

// maxLimit はフィード1回で返す最大件数。
const maxLimit = 200

// Server はフィードサービスのHTTPサーバー。
type Server struct {
	router  *gin.Engine
	cfg     Config
	db      *sqlx.DB
	service *Service
	bus     *refresh.Bus
	bridge  *refresh.RedisBridge
	redis   *goredis.Client
	metrics *metrics.Collector
	logger  logging.Logger
}

// NewServer は新しいフィードサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーション、REDIS_URLが設定されていればイベント中継の開始を行う。
func NewServer(ctx context.Context, cfg Config, logger logging.Logger) (*Server, error) {
	bucket, err := cfg.Bucketer()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	m := metrics.New("neighborly")
	bus := refresh.NewBus(logger, refresh.WithMetrics(m))
	s := newServer(cfg, NewService(NewSQLStore(db), bucket, bus, logger), bus, m, logger)
	s.db = db

	if cfg.RedisURL != "" {
		client, err := refresh.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		bridge := refresh.NewRedisBridge(bus, client, cfg.RefreshChannel, logger)
		if err := bridge.Start(ctx); err != nil {
			_ = client.Close()
			_ = db.Close()
			return nil, err
		}
		s.redis = client
		s.bridge = bridge
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(m.Middleware())
	s.router = router

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	s.registerAPI(api)
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	return s, nil
}

func newServer(cfg Config, service *Service, bus *refresh.Bus, m *metrics.Collector, logger logging.Logger) *Server {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	return &Server{cfg: cfg, service: service, bus: bus, metrics: m, logger: logger}
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

// Close はイベント中継とデータベース接続を閉じる。
func (s *Server) Close() error {
	var errs []error
	if s.bridge != nil {
		errs = append(errs, s.bridge.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// registerAPI は認証済みルートを登録する。
func (s *Server) registerAPI(api *gin.RouterGroup) {
	// フィード取得
	api.GET("/feed", s.handleFeed())
	// フィードのリアルタイム更新
	api.GET("/feed/stream", s.handleStream())
	// アクティビティ詳細
	api.GET("/activities/:id", s.handleDetail())

	// レコード取り込み（内部API - 各ドメインサービスやDBトリガーの中継から呼び出される）
	api.POST("/internal/records", s.handleIngest())
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "feed"})
}

// feedQuery はリクエストからフィード取得の条件を組み立てる。
// 不正な場合は400を返してfalseとなる。
func (s *Server) feedQuery(c *gin.Context) (Query, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return Query{}, false
	}
	neighborhoodID := c.Query("neighborhood_id")
	if neighborhoodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "neighborhood_idが必要です"})
		return Query{}, false
	}

	limit := s.cfg.DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitの値が不正です"})
			return Query{}, false
		}
		limit = min(n, maxLimit)
	}
	return Query{NeighborhoodID: neighborhoodID, ViewerID: userID, Limit: limit}, true
}

// handleFeed は近隣コミュニティのフィードを返すハンドラ。
// grouped=false の場合はグループ化せずにアクティビティのみを返す。
func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := s.feedQuery(c)
		if !ok {
			return
		}
		grouped := true
		if v := c.Query("grouped"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "groupedの値が不正です"})
				return
			}
			grouped = b
		}

		result, err := s.service.Feed(c.Request.Context(), q)
		if err != nil {
			s.logger.WithError(err).WithField("neighborhood_id", q.NeighborhoodID).Error("フィードの取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "フィードの取得に失敗しました"})
			return
		}
		if !grouped {
			result.Groups = nil
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleStream はフィードの変更をWebSocketで配信するハンドラ。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := s.feedQuery(c)
		if !ok {
			return
		}

		cfg := refresh.SubscriberConfig{
			Events:         event.FeedTypes,
			NeighborhoodID: q.NeighborhoodID,
			Debounce:       s.cfg.RefreshDebounce,
			PollInterval:   s.cfg.RefreshPollInterval,
		}
		refresh.ServeStream(c.Writer, c.Request, s.bus, cfg, func(ctx context.Context) (any, error) {
			return s.service.Feed(ctx, q)
		}, s.logger)
	}
}

// handleDetail はアクティビティの詳細を返すハンドラ。削除済みのものも返す。
func (s *Server) handleDetail() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		detail, err := s.service.Detail(c.Request.Context(), c.Param("id"), userID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "アクティビティが見つかりません"})
			return
		}
		if err != nil {
			s.logger.WithError(err).WithField("activity_id", c.Param("id")).Error("アクティビティの取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アクティビティの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// handleIngest はレコードを取り込むハンドラ。
func (s *Server) handleIngest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec activity.RawRecord
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if !rec.Kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知のレコード種別です"})
			return
		}

		act, err := s.service.Ingest(c.Request.Context(), rec)
		if errors.Is(err, ErrInvalidRecord) {
			s.logger.WithError(err).WithField("kind", rec.Kind).Warn("レコードを正規化できません")
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.logger.WithError(err).WithField("kind", rec.Kind).Error("レコードの取り込みに失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レコードの取り込みに失敗しました"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": act.ID, "activity_type": act.ActivityType})
	}
}
