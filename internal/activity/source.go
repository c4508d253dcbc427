package activity

import (
	"encoding/json"
	"time"
)

// SourceKind は取り込んだレコードの出所を表す。取り込み時に設定される。
type SourceKind string

const (
	// KindEvents はイベントの投稿。
	KindEvents SourceKind = "events"
	// KindEventRSVPs はイベントへの参加表明。
	KindEventRSVPs SourceKind = "event_rsvps"
	// KindSkills はスキルの提供・依頼。
	KindSkills SourceKind = "skills"
	// KindSkillSessions はスキルセッションの依頼や状態変化。
	KindSkillSessions SourceKind = "skill_sessions"
	// KindGoods は物品の提供・依頼。
	KindGoods SourceKind = "goods"
	// KindSafety は安全情報。
	KindSafety SourceKind = "safety"
	// KindCare はケアの提供・依頼。
	KindCare SourceKind = "care"
	// KindGroupUpdates はグループへの投稿。
	KindGroupUpdates SourceKind = "group_updates"
	// KindGroupMembers はグループへの参加。
	KindGroupMembers SourceKind = "group_members"
	// KindNeighbors は住人のコミュニティ参加。
	KindNeighbors SourceKind = "neighbors"
	// KindActivities は上流のトリガーが正規化済みの形で保存したアクティビティ。
	KindActivities SourceKind = "activities"
)

// SourceKinds は取り込み可能な全種類。
var SourceKinds = []SourceKind{
	KindEvents, KindEventRSVPs, KindSkills, KindSkillSessions, KindGoods, KindSafety,
	KindCare, KindGroupUpdates, KindGroupMembers, KindNeighbors, KindActivities,
}

// Valid は取り込み可能な種類かどうかを返す。
func (k SourceKind) Valid() bool {
	for _, known := range SourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RawRecord は取り込んだままのレコード。
type RawRecord struct {
	// Kind はレコードの出所。
	Kind SourceKind `json:"kind"`
	// Data は元の行のJSON表現。
	Data json.RawMessage `json:"data"`
}

// profileRow は行に埋め込まれたプロフィール。
type profileRow struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// rowBase は全種類の行に共通する列。
type rowBase struct {
	ID             string          `json:"id"`
	NeighborhoodID string          `json:"neighborhood_id"`
	CreatedAt      time.Time       `json:"created_at"`
	IsPublic       *bool           `json:"is_public"`
	Metadata       json.RawMessage `json:"metadata"`
	Profiles       *profileRow     `json:"profiles"`
}

func (b *rowBase) base() *rowBase { return b }

// sourceRow は種類ごとの行が実装する。
type sourceRow interface {
	base() *rowBase
	// activity は種類固有の列をActivityに写す。共通列はNormalizerが埋める。
	activity() Activity
}

// offerOrRequest は request_type 列を "offered" / "requested" に変換する。
func offerOrRequest(requestType string) string {
	if requestType == "request" {
		return "requested"
	}
	return "offered"
}

type eventRow struct {
	rowBase
	HostID string `json:"host_id"`
	Title  string `json:"title"`
}

func (r *eventRow) activity() Activity {
	return Activity{ActorID: r.HostID, ActivityType: "event_created", ContentID: r.ID, ContentType: "event", Title: r.Title}
}

type eventRSVPRow struct {
	rowBase
	UserID     string `json:"user_id"`
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title"`
}

func (r *eventRSVPRow) activity() Activity {
	return Activity{ActorID: r.UserID, ActivityType: "event_rsvp", ContentID: r.EventID, ContentType: "event", Title: r.EventTitle}
}

type skillRow struct {
	rowBase
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	RequestType string `json:"request_type"`
}

func (r *skillRow) activity() Activity {
	return Activity{
		ActorID:      r.UserID,
		ActivityType: Type("skill_" + offerOrRequest(r.RequestType)),
		ContentID:    r.ID,
		ContentType:  "skill_exchange",
		Title:        r.Title,
	}
}

type skillSessionRow struct {
	rowBase
	RequesterID string `json:"requester_id"`
	SkillID     string `json:"skill_id"`
	SkillTitle  string `json:"skill_title"`
	Status      string `json:"status"`
}

func (r *skillSessionRow) activity() Activity {
	status := r.Status
	if status == "" {
		status = "requested"
	}
	return Activity{
		ActorID:      r.RequesterID,
		ActivityType: Type("skill_session_" + status),
		ContentID:    r.SkillID,
		ContentType:  "skill_session",
		Title:        r.SkillTitle,
	}
}

type goodsRow struct {
	rowBase
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	RequestType string `json:"request_type"`
}

func (r *goodsRow) activity() Activity {
	return Activity{
		ActorID:      r.UserID,
		ActivityType: Type("goods_" + offerOrRequest(r.RequestType)),
		ContentID:    r.ID,
		ContentType:  "goods_exchange",
		Title:        r.Title,
	}
}

type safetyRow struct {
	rowBase
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
}

func (r *safetyRow) activity() Activity {
	action := "update"
	switch r.Type {
	case "emergency", "suspicious":
		action = r.Type
	}
	return Activity{
		ActorID:      r.AuthorID,
		ActivityType: Type("safety_" + action),
		ContentID:    r.ID,
		ContentType:  "safety_update",
		Title:        r.Title,
	}
}

type careRow struct {
	rowBase
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	RequestType string `json:"request_type"`
}

func (r *careRow) activity() Activity {
	return Activity{
		ActorID:      r.UserID,
		ActivityType: Type("care_" + offerOrRequest(r.RequestType)),
		ContentID:    r.ID,
		ContentType:  "care_request",
		Title:        r.Title,
	}
}

type groupUpdateRow struct {
	rowBase
	AuthorID string `json:"author_id"`
	GroupID  string `json:"group_id"`
	Title    string `json:"title"`
}

func (r *groupUpdateRow) activity() Activity {
	return Activity{ActorID: r.AuthorID, ActivityType: "group_update_posted", ContentID: r.ID, ContentType: "group_update", Title: r.Title}
}

type groupMemberRow struct {
	rowBase
	UserID    string `json:"user_id"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

func (r *groupMemberRow) activity() Activity {
	return Activity{ActorID: r.UserID, ActivityType: "group_member_joined", ContentID: r.GroupID, ContentType: "group", Title: r.GroupName}
}

type neighborRow struct {
	rowBase
	UserID string `json:"user_id"`
}

func (r *neighborRow) activity() Activity {
	title := ""
	if r.Profiles != nil && r.Profiles.DisplayName != nil {
		title = *r.Profiles.DisplayName
	}
	return Activity{ActorID: r.UserID, ActivityType: "neighbor_joined", ContentID: r.UserID, ContentType: "neighbor", Title: title}
}

type activityRow struct {
	rowBase
	ActorID      string `json:"actor_id"`
	ActivityType string `json:"activity_type"`
	ContentID    string `json:"content_id"`
	ContentType  string `json:"content_type"`
	Title        string `json:"title"`
}

func (r *activityRow) activity() Activity {
	return Activity{
		ActorID:      r.ActorID,
		ActivityType: Type(r.ActivityType),
		ContentID:    r.ContentID,
		ContentType:  r.ContentType,
		Title:        r.Title,
	}
}
