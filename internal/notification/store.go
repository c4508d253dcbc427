package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound は対象の通知が存在しないことを表す。
var ErrNotFound = errors.New("通知が見つかりません")

// Store は通知の永続化を行う。
type Store interface {
	// Create は通知を保存する。同じ受信者と重複キーの通知が既にある場合は
	// 既存のIDとcreated=falseを返す。
	Create(ctx context.Context, n *Notification) (id string, created bool, err error)
	// Get はIDで通知を取得する。
	Get(ctx context.Context, id string) (*Notification, error)
	// ListByUser は受信者の通知を区分ごとに新しい順で返す。
	ListByUser(ctx context.Context, userID string, archived bool) ([]Notification, error)
	// CountUnread は受信者の未アーカイブかつ未読の通知数を返す。
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead は通知を既読にして受信者IDを返す。
	MarkRead(ctx context.Context, id string) (userID string, err error)
	// MarkAllRead は受信者の指定区分の通知を全て既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID string, archived bool) (int64, error)
	// Archive は通知をアーカイブして受信者IDを返す。
	Archive(ctx context.Context, id string) (userID string, err error)
}

// SQLStore はsqlxとSQLiteによるStoreの実装。
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore は新しいSQLStoreを生成する。
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const notificationColumns = `id, user_id, actor_id, title, content_type, content_id,
	notification_type, action_type, action_label, relevance_score,
	is_read, is_archived, context, dedup_key, created_at, updated_at`

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, n *Notification) (string, bool, error) {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :actor_id, :title, :content_type, :content_id,
			:notification_type, :action_type, :action_label, :relevance_score,
			:is_read, :is_archived, :context, :dedup_key, :created_at, :updated_at)
		ON CONFLICT (user_id, dedup_key) DO NOTHING`, n)
	if err != nil {
		return "", false, fmt.Errorf("通知の挿入に失敗: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("挿入件数の取得に失敗: %w", err)
	}
	if affected == 1 {
		return n.ID, true, nil
	}

	var existing string
	if err := s.db.GetContext(ctx, &existing,
		`SELECT id FROM notifications WHERE user_id = ? AND dedup_key = ?`,
		n.UserID, n.DedupKey,
	); err != nil {
		return "", false, fmt.Errorf("既存通知の取得に失敗: %w", err)
	}
	return existing, false, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return &n, nil
}

// ListByUser implements Store.
func (s *SQLStore) ListByUser(ctx context.Context, userID string, archived bool) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ? AND is_archived = ?
		ORDER BY created_at DESC, id DESC`,
		userID, archived,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// CountUnread implements Store.
func (s *SQLStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_archived = 0 AND is_read = 0`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead implements Store. 既読済みの通知に対しても成功する。
func (s *SQLStore) MarkRead(ctx context.Context, id string) (string, error) {
	return s.updateOne(ctx, `
		UPDATE notifications
		SET updated_at = CASE WHEN is_read = 0 THEN ? ELSE updated_at END, is_read = 1
		WHERE id = ?
		RETURNING user_id`, id)
}

// Archive implements Store. アーカイブ済みの通知に対しても成功する。
func (s *SQLStore) Archive(ctx context.Context, id string) (string, error) {
	return s.updateOne(ctx, `
		UPDATE notifications
		SET updated_at = CASE WHEN is_archived = 0 THEN ? ELSE updated_at END, is_archived = 1
		WHERE id = ?
		RETURNING user_id`, id)
}

func (s *SQLStore) updateOne(ctx context.Context, query, id string) (string, error) {
	var userID string
	err := s.db.GetContext(ctx, &userID, query, s.now(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("通知の更新に失敗: %w", err)
	}
	return userID, nil
}

// MarkAllRead implements Store.
func (s *SQLStore) MarkAllRead(ctx context.Context, userID string, archived bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, updated_at = ?
		WHERE user_id = ? AND is_archived = ? AND is_read = 0`,
		s.now(), userID, archived,
	)
	if err != nil {
		return 0, fmt.Errorf("一括既読に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return n, nil
}
