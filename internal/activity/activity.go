package activity

import (
	"strings"
	"time"
)

// Type はアクティビティの種類。"<カテゴリ>_<アクション>" の形をとる（例: "skill_offered"）。
type Type string

// Category は最初のアンダースコアより前の部分を返す。
func (t Type) Category() string {
	category, _, _ := strings.Cut(string(t), "_")
	return category
}

// Action は最初のアンダースコアより後ろの部分を返す。アンダースコアが無い場合は空文字列。
func (t Type) Action() string {
	_, action, _ := strings.Cut(string(t), "_")
	return action
}

// Actor はアクティビティを起こしたユーザーの表示情報。プロフィールが無い場合は両方nil。
type Actor struct {
	// DisplayName は表示名。
	DisplayName *string `json:"display_name"`
	// AvatarURL はアバター画像のURL。
	AvatarURL *string `json:"avatar_url"`
}

// Activity はフィードに表示される1件の出来事。
type Activity struct {
	// ID はアクティビティの一意識別子。
	ID string `json:"id"`
	// ActorID は出来事を起こしたユーザーのID。
	ActorID string `json:"actor_id"`
	// ActivityType はアクティビティの種類。
	ActivityType Type `json:"activity_type"`
	// ContentID は対象コンテンツのID。
	ContentID string `json:"content_id"`
	// ContentType は対象コンテンツの種類。
	ContentType string `json:"content_type"`
	// Title は表示用のタイトル。
	Title string `json:"title"`
	// CreatedAt は出来事の発生日時。
	CreatedAt time.Time `json:"created_at"`
	// NeighborhoodID は出来事が属する近隣コミュニティ。
	NeighborhoodID string `json:"neighborhood_id"`
	// Metadata はカテゴリ固有の付加情報。無い場合やパースできない場合はnil。
	Metadata *Metadata `json:"metadata"`
	// IsPublic は他の住人に公開されているかどうか。
	IsPublic bool `json:"is_public"`
	// Actor は出来事を起こしたユーザーの表示情報。
	Actor Actor `json:"actor"`
}

// Removed は元データが削除済みかどうかを返す。
func (a Activity) Removed() bool {
	return a.Metadata != nil && a.Metadata.Deleted
}

// DisplayTitle は表示用のタイトルを返す。削除済みで元のタイトルが残っている場合はそちらを返す。
func (a Activity) DisplayTitle() string {
	if a.Removed() && a.Metadata.OriginalTitle != "" {
		return a.Metadata.OriginalTitle
	}
	return a.Title
}
