package notification

import (
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Notification は1人の受信者に届く通知。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `db:"user_id" json:"user_id"`
	// ActorID は通知のきっかけとなったユーザーID。
	ActorID *string `db:"actor_id" json:"actor_id,omitempty"`
	// Title はテンプレートを解決したタイトル。
	Title string `db:"title" json:"title"`
	// ContentType は遷移先コンテンツの種類。
	ContentType string `db:"content_type" json:"content_type"`
	// ContentID は遷移先コンテンツのID。
	ContentID string `db:"content_id" json:"content_id"`
	// NotificationType は通知の分類。
	NotificationType string `db:"notification_type" json:"notification_type"`
	// ActionType はクリック時の動作。
	ActionType string `db:"action_type" json:"action_type"`
	// ActionLabel は動作ボタンのラベル。
	ActionLabel string `db:"action_label" json:"action_label"`
	// RelevanceScore は重要度（1〜3）。
	RelevanceScore int `db:"relevance_score" json:"relevance_score"`
	// IsRead は既読状態。
	IsRead bool `db:"is_read" json:"is_read"`
	// IsArchived はアーカイブ状態。
	IsArchived bool `db:"is_archived" json:"is_archived"`
	// Context はテンプレートIDと変数、呼び出し元のメタデータ。
	Context types.JSONText `db:"context" json:"context"`
	// DedupKey は重複作成を防ぐキー。
	DedupKey string `db:"dedup_key" json:"-"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// UpdatedAt は最終更新日時。
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// dedupKey は受信者ごとに通知を一意にするキーを組み立てる。
func dedupKey(templateID, contentID, actorID string) string {
	return joinKey(templateID, contentID, actorID)
}

// joinKey は各要素に長さを前置して連結する。要素に区切り文字が含まれても別の組と衝突しない。
func joinKey(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
