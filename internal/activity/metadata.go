package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Metadata はアクティビティの付加情報。
type Metadata struct {
	// Deleted は元データが削除されたことを示す。
	Deleted bool `json:"deleted,omitempty"`
	// OriginalTitle は削除前のタイトル。
	OriginalTitle string `json:"original_title,omitempty"`
	// Payload はカテゴリ固有の情報。検証に失敗した場合はnil。
	Payload Payload `json:"payload,omitempty"`
}

// Payload はカテゴリ固有の付加情報。実装はこのパッケージ内の型に限られる。
type Payload interface {
	validate() error
}

// EventPayload はイベントの付加情報。
type EventPayload struct {
	// StartsAt はイベントの開始日時。
	StartsAt *time.Time `json:"starts_at,omitempty"`
	// Location は開催場所。
	Location string `json:"location,omitempty"`
	// RSVPStatus は参加表明の状態（going, maybe, not_going）。
	RSVPStatus string `json:"rsvp_status,omitempty"`
	// AttendeeCount は参加予定人数。
	AttendeeCount int `json:"attendee_count,omitempty"`
}

func (p EventPayload) validate() error {
	if p.AttendeeCount < 0 {
		return fmt.Errorf("参加予定人数が負の値です: %d", p.AttendeeCount)
	}
	return oneOf("rsvp_status", p.RSVPStatus, "going", "maybe", "not_going")
}

// SkillPayload はスキル交換の付加情報。
type SkillPayload struct {
	// Skill はスキル名。
	Skill string `json:"skill,omitempty"`
	// SkillCategory はスキルの分類。
	SkillCategory string `json:"skill_category,omitempty"`
	// SessionID はスキルセッションのID。
	SessionID string `json:"session_id,omitempty"`
	// SessionStatus はセッションの状態（requested, confirmed, cancelled, completed）。
	SessionStatus string `json:"session_status,omitempty"`
}

func (p SkillPayload) validate() error {
	return oneOf("session_status", p.SessionStatus, "requested", "confirmed", "cancelled", "completed")
}

// GoodsPayload は物品交換の付加情報。
type GoodsPayload struct {
	// Item は品目名。
	Item string `json:"item,omitempty"`
	// Condition は物品の状態。
	Condition string `json:"condition,omitempty"`
	// RequestType は提供か依頼か（offer, request）。
	RequestType string `json:"request_type,omitempty"`
}

func (p GoodsPayload) validate() error {
	return oneOf("request_type", p.RequestType, "offer", "request")
}

// SafetyPayload は安全情報の付加情報。
type SafetyPayload struct {
	// Severity は深刻度（low, medium, high, emergency）。
	Severity string `json:"severity,omitempty"`
	// IncidentType は出来事の種類。
	IncidentType string `json:"incident_type,omitempty"`
	// Location は発生場所。
	Location string `json:"location,omitempty"`
}

func (p SafetyPayload) validate() error {
	return oneOf("severity", p.Severity, "low", "medium", "high", "emergency")
}

// CarePayload はケアの付加情報。
type CarePayload struct {
	// CareType はケアの種類（買い物代行、見守りなど）。
	CareType string `json:"care_type,omitempty"`
	// Urgency は緊急度（low, normal, urgent）。
	Urgency string `json:"urgency,omitempty"`
	// RequestType は提供か依頼か（offer, request）。
	RequestType string `json:"request_type,omitempty"`
}

func (p CarePayload) validate() error {
	if err := oneOf("urgency", p.Urgency, "low", "normal", "urgent"); err != nil {
		return err
	}
	return oneOf("request_type", p.RequestType, "offer", "request")
}

// GroupPayload はグループ関連の付加情報。
type GroupPayload struct {
	// GroupID はグループのID。必須。
	GroupID string `json:"group_id"`
	// GroupName はグループ名。
	GroupName string `json:"group_name,omitempty"`
	// Role はメンバーの役割。
	Role string `json:"role,omitempty"`
}

func (p GroupPayload) validate() error {
	if p.GroupID == "" {
		return errors.New("group_idが空です")
	}
	return nil
}

// NeighborPayload は住人の参加に関する付加情報。
type NeighborPayload struct {
	// Street は住んでいる通りの名前。
	Street string `json:"street,omitempty"`
	// JoinedAt はコミュニティへの参加日時。
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

func (p NeighborPayload) validate() error { return nil }

// oneOf は値が空か許可された値のいずれかであることを確認する。
func oneOf(field, value string, allowed ...string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%sの値が不正です: %q", field, value)
}

// decodePayload はカテゴリに対応する型でペイロードを読み取る。
// 対応する型が無いカテゴリの場合は (nil, nil) を返す。
func decodePayload(category string, raw []byte) (Payload, error) {
	var p Payload
	var err error
	switch category {
	case "event":
		p, err = decodeAs[EventPayload](raw)
	case "skill":
		p, err = decodeAs[SkillPayload](raw)
	case "goods":
		p, err = decodeAs[GoodsPayload](raw)
	case "safety":
		p, err = decodeAs[SafetyPayload](raw)
	case "care":
		p, err = decodeAs[CarePayload](raw)
	case "group":
		p, err = decodeAs[GroupPayload](raw)
	case "neighbor":
		p, err = decodeAs[NeighborPayload](raw)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeAs[T Payload](raw []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// unwrapMetadata はJSON文字列として格納されたメタデータを取り出す。
// オブジェクトの場合はそのまま返し、nullや空の場合はnilを返す。
func unwrapMetadata(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	inner := bytes.TrimSpace([]byte(s))
	if len(inner) == 0 || bytes.Equal(inner, []byte("null")) {
		return nil, nil
	}
	return inner, nil
}
