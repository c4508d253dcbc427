package notification

import (
	"context"
	"errors"

	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
)

// StateManager は通知の既読・アーカイブ状態を変更する。
// 全ての操作は冪等で、成功時にリフレッシュバスへイベントを発行する。
type StateManager struct {
	store   Store
	emitter refresh.Emitter
	metrics *metrics.Collector
	logger  logging.Logger
}

// NewStateManager は新しいStateManagerを生成する。metricsはnilでもよい。
func NewStateManager(store Store, emitter refresh.Emitter, m *metrics.Collector, logger logging.Logger) *StateManager {
	return &StateManager{store: store, emitter: emitter, metrics: m, logger: logger}
}

// MarkRead は通知を既読にする。既読済みでも成功する。
func (s *StateManager) MarkRead(ctx context.Context, id string) bool {
	userID, err := s.store.MarkRead(ctx, id)
	if err != nil {
		s.fail("mark_read", err, logging.Fields{"notification_id": id})
		return false
	}
	s.metrics.StateMutation("mark_read", true)
	publishNotificationEvent(s.emitter, s.logger, event.TypeNotificationRead, userID, event.NotificationData{NotificationID: id})
	return true
}

// MarkAllRead はユーザーの指定区分（アーカイブ済みか否か）の通知を全て既読にする。
// もう一方の区分には影響しない。
func (s *StateManager) MarkAllRead(ctx context.Context, userID string, archived bool) bool {
	n, err := s.store.MarkAllRead(ctx, userID, archived)
	if err != nil {
		s.fail("mark_all_read", err, logging.Fields{"user_id": userID, "archived": archived})
		return false
	}
	s.metrics.StateMutation("mark_all_read", true)
	s.logger.WithFields(logging.Fields{"user_id": userID, "archived": archived, "updated": n}).Debug("通知を一括既読にしました")
	publishNotificationEvent(s.emitter, s.logger, event.TypeNotificationsAllRead, userID, event.NotificationData{Archived: archived})
	return true
}

// Archive は通知をアーカイブする。アーカイブ済みでも成功する。
func (s *StateManager) Archive(ctx context.Context, id string) bool {
	userID, err := s.store.Archive(ctx, id)
	if err != nil {
		s.fail("archive", err, logging.Fields{"notification_id": id})
		return false
	}
	s.metrics.StateMutation("archive", true)
	publishNotificationEvent(s.emitter, s.logger, event.TypeNotificationArchived, userID, event.NotificationData{NotificationID: id})
	return true
}

func (s *StateManager) fail(op string, err error, fields logging.Fields) {
	s.metrics.StateMutation(op, false)
	entry := s.logger.WithFields(fields).WithField("operation", op).WithError(err)
	if errors.Is(err, ErrNotFound) {
		entry.Warn("通知が見つかりません")
		return
	}
	entry.Error("通知の状態更新に失敗しました")
}
