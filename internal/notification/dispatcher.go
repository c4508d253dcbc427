package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/internal/template"
	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
)

// CreateParams は通知作成の入力。
type CreateParams struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// ActorID は通知のきっかけとなったユーザーID。システム通知の場合は空。
	ActorID string `json:"actor_id,omitempty"`
	// TemplateID は使用するテンプレートID。
	TemplateID string `json:"template_id"`
	// ContentID は遷移先コンテンツのID。
	ContentID string `json:"content_id"`
	// Variables はプレースホルダーに埋める値。
	Variables map[string]string `json:"variables,omitempty"`
	// Metadata は通知のcontextに追加する任意の値。
	Metadata map[string]any `json:"metadata,omitempty"`
	// DedupKey は重複判定キーを上書きする。空の場合はテンプレートID、コンテンツID、アクターIDから作る。
	DedupKey string `json:"dedup_key,omitempty"`
}

// Dispatcher はテンプレートから通知を作成し、作成をリフレッシュバスへ通知する。
// 全ての通知作成はDispatcherを経由する。
type Dispatcher struct {
	store   Store
	engine  *template.Engine
	emitter refresh.Emitter
	members MemberResolver
	metrics *metrics.Collector
	logger  logging.Logger
	now     func() time.Time
	newID   func() string
}

// DispatcherOption はDispatcherの設定を変更する関数。
type DispatcherOption func(*Dispatcher)

// WithMemberResolver はグループへの一斉通知で使うメンバー解決を設定する。
func WithMemberResolver(r MemberResolver) DispatcherOption {
	return func(d *Dispatcher) { d.members = r }
}

// WithDispatcherMetrics は通知作成のメトリクス記録先を設定する。
func WithDispatcherMetrics(c *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = c }
}

// NewDispatcher は新しいDispatcherを生成する。
func NewDispatcher(store Store, engine *template.Engine, emitter refresh.Emitter, logger logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		engine:  engine,
		emitter: emitter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateNotification はテンプレートを解決して通知を保存し、通知IDを返す。
// 未知のテンプレートや保存失敗の場合は ("", false) を返し、ストアには触れない。
// 同じ通知が既にある場合は既存のIDを返し、イベントは発行しない。
func (d *Dispatcher) CreateNotification(ctx context.Context, p CreateParams) (string, bool) {
	result := d.engine.Process(p.TemplateID, p.Variables)
	if result == nil {
		d.metrics.NotificationFailed("template")
		return "", false
	}

	fields := logging.Fields{
		"template_id":  p.TemplateID,
		"recipient_id": p.RecipientID,
		"content_id":   p.ContentID,
	}
	if p.RecipientID == "" {
		d.logger.WithFields(fields).Error("通知先のユーザーIDが指定されていません")
		d.metrics.NotificationFailed("invalid")
		return "", false
	}

	ctxJSON, err := buildContext(p)
	if err != nil {
		d.logger.WithFields(fields).WithError(err).Error("通知コンテキストのシリアライズに失敗しました")
		d.metrics.NotificationFailed("invalid")
		return "", false
	}

	key := p.DedupKey
	if key == "" {
		key = dedupKey(p.TemplateID, p.ContentID, p.ActorID)
	}

	now := d.now()
	n := &Notification{
		ID:               d.newID(),
		UserID:           p.RecipientID,
		Title:            result.Title,
		ContentType:      result.Template.ContentType,
		ContentID:        p.ContentID,
		NotificationType: result.Template.NotificationType,
		ActionType:       result.Template.ActionType,
		ActionLabel:      result.Template.ActionLabel,
		RelevanceScore:   result.Template.RelevanceScore,
		Context:          ctxJSON,
		DedupKey:         key,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.ActorID != "" {
		actor := p.ActorID
		n.ActorID = &actor
	}

	id, created, err := d.store.Create(ctx, n)
	if err != nil {
		d.logger.WithFields(fields).WithError(err).Error("通知の保存に失敗しました")
		d.metrics.NotificationFailed("store")
		return "", false
	}
	if !created {
		d.logger.WithFields(fields).WithField("notification_id", id).Debug("同じ通知が既に存在するため作成をスキップしました")
		d.metrics.NotificationDeduplicated(p.TemplateID)
		return id, true
	}

	d.metrics.NotificationCreated(p.TemplateID)
	publishNotificationEvent(d.emitter, d.logger, event.TypeNotificationCreated, p.RecipientID, event.NotificationData{
		NotificationID: id,
		TemplateID:     p.TemplateID,
	})
	return id, true
}

// publishNotificationEvent は受信者に絞り込んだ通知系イベントを発行する。
func publishNotificationEvent(emitter refresh.Emitter, logger logging.Logger, t event.Type, userID string, data event.NotificationData) {
	if emitter == nil {
		return
	}
	ev, err := event.New(t, data)
	if err != nil {
		logger.WithError(err).WithField("event_type", t).Error("イベントの生成に失敗しました")
		return
	}
	emitter.Publish(ev.ForUser(userID))
}

// buildContext は通知のcontext列に保存するJSONを組み立てる。
// templateIdとvariablesはメタデータの同名キーより優先する。
func buildContext(p CreateParams) ([]byte, error) {
	c := make(map[string]any, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		c[k] = v
	}
	vars := p.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	c["templateId"] = p.TemplateID
	c["variables"] = vars
	return json.Marshal(c)
}
