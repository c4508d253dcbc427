// Package event はリフレッシュバスで流れるイベントの種類と封筒（Envelope）を定義する。
//
// ドメイン変更を行う側（通知作成、既読化、投稿の受信など）と、
// 画面ごとの再取得を行う側の間の契約となる。
package event

import (
	"encoding/json"
	"time"
)

// Type はリフレッシュイベントの種類を表す。
type Type string

const (
	// TypeNotificationCreated は通知が作成されたことを表す。
	TypeNotificationCreated Type = "notification-created"
	// TypeNotificationRead は通知が既読になったことを表す。
	TypeNotificationRead Type = "notification-read"
	// TypeNotificationArchived は通知がアーカイブされたことを表す。
	TypeNotificationArchived Type = "notification-archived"
	// TypeNotificationsAllRead はユーザーの通知が一括既読になったことを表す。
	TypeNotificationsAllRead Type = "notifications-all-read"

	// TypeEventRSVPUpdated はイベントの参加表明が更新されたことを表す。
	TypeEventRSVPUpdated Type = "event-rsvp-updated"
	// TypeSkillsUpdated はスキル交換（提供・依頼・セッション）が更新されたことを表す。
	TypeSkillsUpdated Type = "skills-updated"
	// TypeSafetyUpdated は安全情報が更新されたことを表す。
	TypeSafetyUpdated Type = "safety-updated"
	// TypeGoodsUpdated は物品交換が更新されたことを表す。
	TypeGoodsUpdated Type = "goods-updated"
	// TypeCareUpdated はケア（見守り・介助）の投稿が更新されたことを表す。
	TypeCareUpdated Type = "care-updated"
	// TypeGroupsUpdated はグループの投稿やメンバーが更新されたことを表す。
	TypeGroupsUpdated Type = "groups-updated"
	// TypeActivitiesUpdated はフィードに載るアクティビティが更新されたことを表す。
	TypeActivitiesUpdated Type = "activities-updated"
	// TypeEventSubmitted はイベントが投稿されたことを表す。
	TypeEventSubmitted Type = "event-submitted"
	// TypeEventDeleted はイベントが削除されたことを表す。
	TypeEventDeleted Type = "event-deleted"
)

// NotificationTypes は通知一覧画面が購読するイベントの集合。
var NotificationTypes = []Type{
	TypeNotificationCreated,
	TypeNotificationRead,
	TypeNotificationArchived,
	TypeNotificationsAllRead,
}

// FeedTypes はアクティビティフィード画面が購読するイベントの集合。
var FeedTypes = []Type{
	TypeActivitiesUpdated,
	TypeEventSubmitted,
	TypeEventDeleted,
	TypeEventRSVPUpdated,
	TypeSkillsUpdated,
	TypeSafetyUpdated,
	TypeGoodsUpdated,
	TypeCareUpdated,
	TypeGroupsUpdated,
}

// AllTypes は定義済みの全イベント種別を返す。
func AllTypes() []Type {
	all := make([]Type, 0, len(NotificationTypes)+len(FeedTypes))
	all = append(all, NotificationTypes...)
	all = append(all, FeedTypes...)
	return all
}

// Valid は定義済みのイベント種別かどうかを返す。
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event はリフレッシュバスで配送される1件のイベント。
// UserIDやNeighborhoodIDが空の場合は全購読者が対象となる。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Type はイベントの種類。
	Type Type `json:"type"`
	// UserID は対象ユーザー。通知系イベントで受信者を絞り込むために使う。
	UserID string `json:"user_id,omitempty"`
	// NeighborhoodID は対象の近隣コミュニティ。フィード系イベントで使う。
	NeighborhoodID string `json:"neighborhood_id,omitempty"`
	// Origin はイベントを発行したプロセスの識別子。ブリッジの折り返し防止に使う。
	Origin string `json:"origin,omitempty"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// NotificationData は通知系イベントのデータ。
type NotificationData struct {
	// NotificationID は対象の通知ID。一括既読の場合は空。
	NotificationID string `json:"notification_id,omitempty"`
	// TemplateID は通知作成に使ったテンプレートID。
	TemplateID string `json:"template_id,omitempty"`
	// Archived は一括既読の対象がアーカイブ済みの区分かどうか。
	Archived bool `json:"archived,omitempty"`
}

// RecordData はフィード系イベントのデータ。
type RecordData struct {
	// Kind は更新された元データの種類。
	Kind string `json:"kind"`
	// RecordID は更新された元データのID。
	RecordID string `json:"record_id"`
}
