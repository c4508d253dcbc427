package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nao1215/neighborly/pkg/httpclient"
	"github.com/nao1215/neighborly/pkg/logging"
)

// ErrNoMemberResolver はメンバー解決が設定されていないことを表す。
var ErrNoMemberResolver = errors.New("グループメンバーの解決方法が設定されていません")

// MemberResolver はグループのメンバー一覧を解決する。
type MemberResolver interface {
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// GroupDirectory はグループサービスにメンバー一覧を問い合わせるMemberResolver。
type GroupDirectory struct {
	client *httpclient.Client
}

// NewGroupDirectory は新しいGroupDirectoryを生成する。
func NewGroupDirectory(client *httpclient.Client) *GroupDirectory {
	return &GroupDirectory{client: client}
}

// groupMembersResponse はグループサービスのメンバー一覧レスポンス。
type groupMembersResponse struct {
	GroupID string   `json:"group_id"`
	Members []string `json:"members"`
}

// GroupMembers implements MemberResolver.
func (g *GroupDirectory) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var resp groupMembersResponse
	path := "/api/v1/internal/groups/" + url.PathEscape(groupID) + "/members"
	if err := g.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("グループメンバーの取得に失敗: %w", err)
	}
	return resp.Members, nil
}

// GroupNotification はグループメンバー全員への通知の入力。
type GroupNotification struct {
	// GroupID は対象グループのID。
	GroupID string `json:"group_id"`
	// ActorID は通知のきっかけとなったユーザーID。通知先から除外される。
	ActorID string `json:"actor_id"`
	// TemplateID は使用するテンプレートID。
	TemplateID string `json:"template_id" binding:"required"`
	// ContentID は遷移先コンテンツのID。
	ContentID string `json:"content_id" binding:"required"`
	// Variables はプレースホルダーに埋める値。
	Variables map[string]string `json:"variables,omitempty"`
	// Metadata は通知のcontextに追加する任意の値。
	Metadata map[string]any `json:"metadata,omitempty"`
	// Recipients は通知先を明示する場合のユーザーID一覧。空の場合はメンバーを解決する。
	Recipients []string `json:"recipients,omitempty"`
}

// FanOutResult はグループへの一斉通知の結果。
type FanOutResult struct {
	// Created は作成された（または既存の）通知ID。
	Created []string `json:"created"`
	// Failed は通知の作成に失敗した受信者ID。
	Failed []string `json:"failed"`
}

// NotifyGroupMembers はアクターを除くグループメンバー全員に通知を作成する。
// 一部の受信者で失敗しても残りの受信者への作成は続ける。
// メンバー一覧を解決できなかった場合はエラーを返す。
func (d *Dispatcher) NotifyGroupMembers(ctx context.Context, g GroupNotification) (FanOutResult, error) {
	result := FanOutResult{Created: []string{}, Failed: []string{}}

	recipients := g.Recipients
	if len(recipients) == 0 {
		if d.members == nil {
			return result, ErrNoMemberResolver
		}
		members, err := d.members.GroupMembers(ctx, g.GroupID)
		if err != nil {
			d.logger.WithError(err).WithField("group_id", g.GroupID).Error("グループメンバーの解決に失敗しました")
			return result, err
		}
		recipients = members
	}

	seen := make(map[string]bool, len(recipients))
	for _, recipient := range recipients {
		if recipient == "" || recipient == g.ActorID || seen[recipient] {
			continue
		}
		seen[recipient] = true

		id, ok := d.CreateNotification(ctx, CreateParams{
			RecipientID: recipient,
			ActorID:     g.ActorID,
			TemplateID:  g.TemplateID,
			ContentID:   g.ContentID,
			Variables:   g.Variables,
			Metadata:    g.Metadata,
		})
		if !ok {
			result.Failed = append(result.Failed, recipient)
			continue
		}
		result.Created = append(result.Created, id)
	}

	d.metrics.FanOut(len(result.Created), len(result.Failed))
	entry := d.logger.WithFields(logging.Fields{
		"group_id":    g.GroupID,
		"template_id": g.TemplateID,
		"created":     len(result.Created),
		"failed":      len(result.Failed),
	})
	if len(result.Failed) > 0 {
		entry.Warn("グループへの一斉通知で一部の作成に失敗しました")
	} else {
		entry.Info("グループへの一斉通知が完了しました")
	}
	return result, nil
}
