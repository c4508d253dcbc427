package notification

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

	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/internal/template"
	"github.com/nao1215/neighborly/pkg/database"
	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/httpclient"
	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
	"github.com/nao1215/neighborly/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg Config
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// store は通知の永続化。
	store Store
	// engine はテンプレートエンジン。
	engine *template.Engine
	// dispatcher は通知の作成を行う。
	dispatcher *Dispatcher
	// state は既読・アーカイブ操作を行う。
	state *StateManager
	// bus はリフレッシュイベントのバス。
	bus *refresh.Bus
	// bridge はRedis経由のイベント中継。REDIS_URL未設定の場合はnil。
	bridge *refresh.RedisBridge
	// redis はbridgeが使うRedisクライアント。
	redis *goredis.Client
	// metrics はPrometheusメトリクス。
	metrics *metrics.Collector
	// logger は構造化ロガー。
	logger logging.Logger
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とマイグレーション、REDIS_URLが設定されていればイベント中継の開始を行う。
func NewServer(ctx context.Context, cfg Config, logger logging.Logger) (*Server, error) {
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
	groups := NewGroupDirectory(httpclient.New(cfg.GroupsURL, httpclient.WithTimeout(5*time.Second)))

	s := newServer(cfg, NewSQLStore(db), bus, m, logger, WithMemberResolver(groups))
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
	s.setupRoutes()

	return s, nil
}

// newServer はルーター以外の依存を組み立てる。
func newServer(cfg Config, store Store, bus *refresh.Bus, m *metrics.Collector, logger logging.Logger, opts ...DispatcherOption) *Server {
	engine := template.NewEngine(nil, logger)
	opts = append([]DispatcherOption{WithDispatcherMetrics(m)}, opts...)
	return &Server{
		cfg:        cfg,
		store:      store,
		engine:     engine,
		dispatcher: NewDispatcher(store, engine, bus, logger, opts...),
		state:      NewStateManager(store, bus, m, logger),
		bus:        bus,
		metrics:    m,
		logger:     logger,
	}
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

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	s.registerAPI(api)

	// ヘルスチェック
	s.router.GET("/health", handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// registerAPI は認証済みルートを登録する。
func (s *Server) registerAPI(api *gin.RouterGroup) {
	notifications := api.Group("/notifications")
	{
		// 区分別の通知一覧取得
		notifications.GET("", s.handleList())
		// 未読件数取得
		notifications.GET("/unread-count", s.handleUnreadCount())
		// 通知一覧のリアルタイム更新
		notifications.GET("/stream", s.handleStream())
		// 区分内の全通知を既読にする
		notifications.PUT("/read-all", s.handleMarkAllAsRead())
		// 通知を既読にする
		notifications.PUT("/:id/read", s.handleMarkAsRead())
		// 通知をアーカイブする
		notifications.PUT("/:id/archive", s.handleArchive())
	}

	// テンプレート一覧
	api.GET("/templates", s.handleTemplates())

	// 通知作成（内部API - 各ドメインサービスから呼び出される）
	internal := api.Group("/internal")
	{
		internal.POST("/notifications", s.handleCreate())
		internal.POST("/notifications/groups/:group_id", s.handleNotifyGroup())
		internal.POST("/domain-events/:kind", s.handleDomainEvent())
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
}

// parseArchived はarchivedクエリパラメータを解釈する。未指定の場合はfalse。
func parseArchived(c *gin.Context) (bool, error) {
	v := c.Query("archived")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// requireUser は認証済みユーザーIDを返す。取得できない場合は401を返してfalseとなる。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		archived, err := parseArchived(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archivedの値が不正です"})
			return
		}

		list, err := s.store.ListByUser(c.Request.Context(), userID, archived)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Error("通知一覧の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// handleUnreadCount は未読通知の件数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		count, err := s.store.CountUnread(c.Request.Context(), userID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Error("未読件数の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// notificationSnapshot はストリームで送る通知一覧の内容。
type notificationSnapshot struct {
	Archived      bool           `json:"archived"`
	UnreadCount   int            `json:"unread_count"`
	Notifications []Notification `json:"notifications"`
}

// handleStream は通知一覧の変更をWebSocketで配信するハンドラ。
// 通知系イベントを受けるたびに一覧を取り直して送る。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		archived, err := parseArchived(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archivedの値が不正です"})
			return
		}

		cfg := refresh.SubscriberConfig{
			Events:       event.NotificationTypes,
			UserID:       userID,
			Debounce:     s.cfg.RefreshDebounce,
			PollInterval: s.cfg.RefreshPollInterval,
		}
		refresh.ServeStream(c.Writer, c.Request, s.bus, cfg, func(ctx context.Context) (any, error) {
			list, err := s.store.ListByUser(ctx, userID, archived)
			if err != nil {
				return nil, err
			}
			unread, err := s.store.CountUnread(ctx, userID)
			if err != nil {
				return nil, err
			}
			return notificationSnapshot{Archived: archived, UnreadCount: unread, Notifications: list}, nil
		}, s.logger)
	}
}

// loadOwned は通知を取得し、認証済みユーザーが受信者であることを確認する。
// 失敗した場合はレスポンスを書き込んでnilを返す。
func (s *Server) loadOwned(c *gin.Context) *Notification {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	n, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("notification_id", c.Param("id")).Error("通知の取得に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
		return nil
	}
	if n.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
		return nil
	}
	return n
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n := s.loadOwned(c)
		if n == nil {
			return
		}
		if !s.state.MarkRead(c.Request.Context(), n.ID) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleArchive は指定された通知をアーカイブするハンドラ。
func (s *Server) handleArchive() gin.HandlerFunc {
	return func(c *gin.Context) {
		n := s.loadOwned(c)
		if n == nil {
			return
		}
		if !s.state.Archive(c.Request.Context(), n.ID) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知のアーカイブに失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知をアーカイブしました"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの指定区分の全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		archived, err := parseArchived(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archivedの値が不正です"})
			return
		}

		if !s.state.MarkAllRead(c.Request.Context(), userID, archived) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}

// templateResponse はテンプレート一覧のJSONレスポンス構造。
type templateResponse struct {
	template.Template
	// Placeholders はテンプレートが要求する変数名。
	Placeholders []string `json:"placeholders"`
}

// handleTemplates は登録済みテンプレートの一覧を返すハンドラ。
func (s *Server) handleTemplates() gin.HandlerFunc {
	return func(c *gin.Context) {
		registry := s.engine.Registry()
		templates := registry.Templates()
		resp := make([]templateResponse, 0, len(templates))
		for _, t := range templates {
			resp = append(resp, templateResponse{Template: t, Placeholders: registry.Placeholders(t.ID)})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// createRequest は通知作成リクエストのJSON構造。
type createRequest struct {
	RecipientID string            `json:"recipient_id" binding:"required"`
	ActorID     string            `json:"actor_id"`
	TemplateID  string            `json:"template_id" binding:"required"`
	ContentID   string            `json:"content_id" binding:"required"`
	Variables   map[string]string `json:"variables"`
	Metadata    map[string]any    `json:"metadata"`
}

// handleCreate はテンプレートから通知を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if _, ok := s.engine.Registry().Lookup(req.TemplateID); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知のテンプレートです"})
			return
		}

		id, ok := s.dispatcher.CreateNotification(c.Request.Context(), CreateParams{
			RecipientID: req.RecipientID,
			ActorID:     req.ActorID,
			TemplateID:  req.TemplateID,
			ContentID:   req.ContentID,
			Variables:   req.Variables,
			Metadata:    req.Metadata,
		})
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": id, "message": "通知を作成しました"})
	}
}

// handleNotifyGroup はグループメンバー全員に通知を作成するハンドラ。
func (s *Server) handleNotifyGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GroupNotification
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		req.GroupID = c.Param("group_id")
		if _, ok := s.engine.Registry().Lookup(req.TemplateID); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知のテンプレートです"})
			return
		}

		result, err := s.dispatcher.NotifyGroupMembers(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "グループメンバーの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleDomainEvent はドメインイベントの種類に応じた型付きヘルパーを呼ぶハンドラ。
func (s *Server) handleDomainEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Param("kind") {
		case "event-rsvp":
			serveDomainEvent(c, s.dispatcher.NotifyEventRSVP)
		case "skill-session-request":
			serveDomainEvent(c, s.dispatcher.NotifySkillSessionRequest)
		case "skill-session-cancelled":
			serveDomainEvent(c, s.dispatcher.NotifySkillSessionCancelled)
		case "neighbor-joined":
			serveDomainEvent(c, s.dispatcher.NotifyNeighborJoined)
		case "safety-comment":
			serveDomainEvent(c, s.dispatcher.NotifySafetyComment)
		case "goods-response":
			serveDomainEvent(c, s.dispatcher.NotifyGoodsResponse)
		case "care-response":
			serveDomainEvent(c, s.dispatcher.NotifyCareResponse)
		case "group-invitation":
			serveDomainEvent(c, s.dispatcher.NotifyGroupInvitation)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "未知のドメインイベントです"})
		}
	}
}

// serveDomainEvent はリクエストボディをTに読み込み、notifyで通知を作成する。
func serveDomainEvent[T domainEvent](c *gin.Context, notify func(context.Context, T) (string, bool)) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
		return
	}
	if isSelf(req) {
		c.JSON(http.StatusOK, gin.H{"skipped": true, "message": "自分自身への通知はスキップしました"})
		return
	}

	id, ok := notify(c.Request.Context(), req)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "通知を作成しました"})
}
