package notification

import (
	"context"
)

// domainEvent は型付きヘルパーの入力が満たすインターフェース。
type domainEvent interface {
	// parties は通知先とアクターを返す。
	parties() (recipientID, actorID string)
}

// isSelf は通知先とアクターが同一ユーザーかどうかを返す。
func isSelf(e domainEvent) bool {
	recipient, actor := e.parties()
	return recipient != "" && recipient == actor
}

// EventRSVPParams はイベントへの参加表明の通知入力。
type EventRSVPParams struct {
	HostID       string `json:"host_id" binding:"required"`
	AttendeeID   string `json:"attendee_id" binding:"required"`
	AttendeeName string `json:"attendee_name"`
	EventID      string `json:"event_id" binding:"required"`
	EventTitle   string `json:"event_title"`
	RSVPStatus   string `json:"rsvp_status"`
}

func (p EventRSVPParams) parties() (string, string) { return p.HostID, p.AttendeeID }

// SkillSessionRequestParams はスキルセッション依頼の通知入力。
type SkillSessionRequestParams struct {
	ProviderID    string `json:"provider_id" binding:"required"`
	RequesterID   string `json:"requester_id" binding:"required"`
	RequesterName string `json:"requester_name"`
	SkillID       string `json:"skill_id"`
	SkillTitle    string `json:"skill_title"`
	SessionID     string `json:"session_id" binding:"required"`
}

func (p SkillSessionRequestParams) parties() (string, string) { return p.ProviderID, p.RequesterID }

// SkillSessionCancelledParams はスキルセッション取り消しの通知入力。
type SkillSessionCancelledParams struct {
	RecipientID     string `json:"recipient_id" binding:"required"`
	CancelledByID   string `json:"cancelled_by_id" binding:"required"`
	CancelledByName string `json:"cancelled_by_name"`
	SkillTitle      string `json:"skill_title"`
	SessionID       string `json:"session_id" binding:"required"`
}

func (p SkillSessionCancelledParams) parties() (string, string) { return p.RecipientID, p.CancelledByID }

// NeighborJoinedParams は近隣住民の参加の通知入力。
type NeighborJoinedParams struct {
	RecipientID  string `json:"recipient_id" binding:"required"`
	NeighborID   string `json:"neighbor_id" binding:"required"`
	NeighborName string `json:"neighbor_name"`
}

func (p NeighborJoinedParams) parties() (string, string) { return p.RecipientID, p.NeighborID }

// SafetyCommentParams は安全情報へのコメントの通知入力。
type SafetyCommentParams struct {
	AuthorID       string `json:"author_id" binding:"required"`
	CommenterID    string `json:"commenter_id" binding:"required"`
	CommenterName  string `json:"commenter_name"`
	SafetyUpdateID string `json:"safety_update_id" binding:"required"`
	SafetyTitle    string `json:"safety_title"`
	CommentID      string `json:"comment_id"`
}

func (p SafetyCommentParams) parties() (string, string) { return p.AuthorID, p.CommenterID }

// GoodsResponseParams は物品の投稿への反応の通知入力。
type GoodsResponseParams struct {
	OwnerID       string `json:"owner_id" binding:"required"`
	ResponderID   string `json:"responder_id" binding:"required"`
	ResponderName string `json:"responder_name"`
	GoodsID       string `json:"goods_id" binding:"required"`
	ItemTitle     string `json:"item_title"`
	ResponseID    string `json:"response_id"`
}

func (p GoodsResponseParams) parties() (string, string) { return p.OwnerID, p.ResponderID }

// CareResponseParams はケア依頼への反応の通知入力。
type CareResponseParams struct {
	RequesterID   string `json:"requester_id" binding:"required"`
	ResponderID   string `json:"responder_id" binding:"required"`
	ResponderName string `json:"responder_name"`
	CareID        string `json:"care_id" binding:"required"`
	CareTitle     string `json:"care_title"`
	ResponseID    string `json:"response_id"`
}

func (p CareResponseParams) parties() (string, string) { return p.RequesterID, p.ResponderID }

// GroupInvitationParams はグループ招待の通知入力。
type GroupInvitationParams struct {
	InviteeID   string `json:"invitee_id" binding:"required"`
	InviterID   string `json:"inviter_id" binding:"required"`
	InviterName string `json:"inviter_name"`
	GroupID     string `json:"group_id" binding:"required"`
	GroupName   string `json:"group_name"`
}

func (p GroupInvitationParams) parties() (string, string) { return p.InviteeID, p.InviterID }

// notifyUnlessSelf は自分自身への通知をスキップしてからCreateNotificationを呼ぶ。
func (d *Dispatcher) notifyUnlessSelf(ctx context.Context, e domainEvent, p CreateParams) (string, bool) {
	if isSelf(e) {
		d.logger.WithField("template_id", p.TemplateID).Debug("自分自身への通知はスキップします")
		return "", false
	}
	return d.CreateNotification(ctx, p)
}

// responseDedupKey は返信IDがある場合に返信ごとの重複判定キーを作る。
func responseDedupKey(templateID, responseID string) string {
	if responseID == "" {
		return ""
	}
	return joinKey(templateID, responseID)
}

// NotifyEventRSVP はイベント主催者に参加表明を通知する。
func (d *Dispatcher) NotifyEventRSVP(ctx context.Context, p EventRSVPParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.HostID,
		ActorID:     p.AttendeeID,
		TemplateID:  "event_rsvp",
		ContentID:   p.EventID,
		Variables:   map[string]string{"actor": p.AttendeeName, "title": p.EventTitle},
		Metadata:    map[string]any{"rsvp_status": p.RSVPStatus},
	})
}

// NotifySkillSessionRequest はスキル提供者にセッション依頼を通知する。
func (d *Dispatcher) NotifySkillSessionRequest(ctx context.Context, p SkillSessionRequestParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.ProviderID,
		ActorID:     p.RequesterID,
		TemplateID:  "skill_session_request",
		ContentID:   p.SessionID,
		Variables:   map[string]string{"actor": p.RequesterName, "skill": p.SkillTitle},
		Metadata:    map[string]any{"skill_id": p.SkillID},
	})
}

// NotifySkillSessionCancelled はセッションの相手に取り消しを通知する。
func (d *Dispatcher) NotifySkillSessionCancelled(ctx context.Context, p SkillSessionCancelledParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.RecipientID,
		ActorID:     p.CancelledByID,
		TemplateID:  "skill_session_cancelled",
		ContentID:   p.SessionID,
		Variables:   map[string]string{"actor": p.CancelledByName, "skill": p.SkillTitle},
	})
}

// NotifyNeighborJoined は近隣住民に新しい住民の参加を通知する。
func (d *Dispatcher) NotifyNeighborJoined(ctx context.Context, p NeighborJoinedParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.RecipientID,
		ActorID:     p.NeighborID,
		TemplateID:  "neighbor_joined",
		ContentID:   p.NeighborID,
		Variables:   map[string]string{"actor": p.NeighborName},
	})
}

// NotifySafetyComment は安全情報の投稿者にコメントを通知する。
// コメントIDがある場合はコメントごとに通知する。
func (d *Dispatcher) NotifySafetyComment(ctx context.Context, p SafetyCommentParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.AuthorID,
		ActorID:     p.CommenterID,
		TemplateID:  "safety_comment",
		ContentID:   p.SafetyUpdateID,
		Variables:   map[string]string{"actor": p.CommenterName, "title": p.SafetyTitle},
		Metadata:    map[string]any{"comment_id": p.CommentID},
		DedupKey:    responseDedupKey("safety_comment", p.CommentID),
	})
}

// NotifyGoodsResponse は物品の投稿者に反応を通知する。
func (d *Dispatcher) NotifyGoodsResponse(ctx context.Context, p GoodsResponseParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.OwnerID,
		ActorID:     p.ResponderID,
		TemplateID:  "goods_response",
		ContentID:   p.GoodsID,
		Variables:   map[string]string{"actor": p.ResponderName, "item": p.ItemTitle},
		Metadata:    map[string]any{"response_id": p.ResponseID},
		DedupKey:    responseDedupKey("goods_response", p.ResponseID),
	})
}

// NotifyCareResponse はケアの依頼者に反応を通知する。
func (d *Dispatcher) NotifyCareResponse(ctx context.Context, p CareResponseParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.RequesterID,
		ActorID:     p.ResponderID,
		TemplateID:  "care_response",
		ContentID:   p.CareID,
		Variables:   map[string]string{"actor": p.ResponderName, "care": p.CareTitle},
		Metadata:    map[string]any{"response_id": p.ResponseID},
		DedupKey:    responseDedupKey("care_response", p.ResponseID),
	})
}

// NotifyGroupInvitation は招待されたユーザーにグループへの招待を通知する。
func (d *Dispatcher) NotifyGroupInvitation(ctx context.Context, p GroupInvitationParams) (string, bool) {
	return d.notifyUnlessSelf(ctx, p, CreateParams{
		RecipientID: p.InviteeID,
		ActorID:     p.InviterID,
		TemplateID:  "group_invitation",
		ContentID:   p.GroupID,
		Variables:   map[string]string{"actor": p.InviterName, "group": p.GroupName},
	})
}
