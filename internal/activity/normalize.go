package activity

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nao1215/neighborly/pkg/logging"
)

// ErrUnknownSourceKind は取り込み対象外の種類のレコードを正規化しようとした場合のエラー。
var ErrUnknownSourceKind = errors.New("未知のレコード種別")

// ErrInvalidActivityType はアクティビティの種類が "<カテゴリ>_<アクション>" の形でない場合のエラー。
var ErrInvalidActivityType = errors.New("不正なアクティビティの種類")

// Normalizer は取り込んだレコードをActivityに変換する。
type Normalizer struct {
	logger logging.Logger
}

// NewNormalizer は新しいNormalizerを生成する。
func NewNormalizer(logger logging.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize はレコードを1件のActivityに変換する。
// メタデータが読めない場合はエラーにせずMetadataをnilにする。
func (n *Normalizer) Normalize(rec RawRecord) (Activity, error) {
	var row sourceRow
	switch rec.Kind {
	case KindEvents:
		row = &eventRow{}
	case KindEventRSVPs:
		row = &eventRSVPRow{}
	case KindSkills:
		row = &skillRow{}
	case KindSkillSessions:
		row = &skillSessionRow{}
	case KindGoods:
		row = &goodsRow{}
	case KindSafety:
		row = &safetyRow{}
	case KindCare:
		row = &careRow{}
	case KindGroupUpdates:
		row = &groupUpdateRow{}
	case KindGroupMembers:
		row = &groupMemberRow{}
	case KindNeighbors:
		row = &neighborRow{}
	case KindActivities:
		row = &activityRow{}
	default:
		return Activity{}, fmt.Errorf("%w: %q", ErrUnknownSourceKind, rec.Kind)
	}

	if err := json.Unmarshal(rec.Data, row); err != nil {
		return Activity{}, fmt.Errorf("%sレコードのデコードに失敗: %w", rec.Kind, err)
	}

	base := row.base()
	act := row.activity()
	if base.ID == "" {
		return Activity{}, fmt.Errorf("%sレコードにidがありません", rec.Kind)
	}
	if act.ActorID == "" {
		return Activity{}, fmt.Errorf("%sレコード %s に実行者がありません", rec.Kind, base.ID)
	}
	if act.ActivityType.Category() == "" || act.ActivityType.Action() == "" {
		return Activity{}, fmt.Errorf("%w: %sレコード %s の種類 %q", ErrInvalidActivityType, rec.Kind, base.ID, act.ActivityType)
	}

	act.ID = base.ID
	act.NeighborhoodID = base.NeighborhoodID
	act.CreatedAt = base.CreatedAt
	act.IsPublic = base.IsPublic == nil || *base.IsPublic
	if base.Profiles != nil {
		act.Actor = Actor{DisplayName: base.Profiles.DisplayName, AvatarURL: base.Profiles.AvatarURL}
	}
	act.Metadata = n.parseMetadata(base.Metadata, act)
	return act, nil
}

// NormalizeAll は複数のレコードを変換する。変換できないレコードはログに残して読み飛ばす。
func (n *Normalizer) NormalizeAll(records []RawRecord) []Activity {
	out := make([]Activity, 0, len(records))
	for _, rec := range records {
		act, err := n.Normalize(rec)
		if err != nil {
			n.logger.WithError(err).WithField("kind", rec.Kind).Warn("レコードの正規化をスキップしました")
			continue
		}
		out = append(out, act)
	}
	return out
}

// parseMetadata はメタデータ列を読み取る。
// JSONとして読めない場合はnil、カテゴリ固有部分の検証に失敗した場合は共通部分のみを返す。
func (n *Normalizer) parseMetadata(raw json.RawMessage, act Activity) *Metadata {
	obj, err := unwrapMetadata(raw)
	if err != nil || obj == nil {
		if err != nil {
			n.logger.WithError(err).WithField("activity_id", act.ID).Debug("メタデータを読み取れません")
		}
		return nil
	}

	var common struct {
		Deleted            bool   `json:"deleted"`
		OriginalTitle      string `json:"original_title"`
		OriginalTitleCamel string `json:"originalTitle"`
	}
	if err := json.Unmarshal(obj, &common); err != nil {
		n.logger.WithError(err).WithField("activity_id", act.ID).Debug("メタデータを読み取れません")
		return nil
	}

	md := &Metadata{Deleted: common.Deleted, OriginalTitle: cmp.Or(common.OriginalTitle, common.OriginalTitleCamel)}
	payload, err := decodePayload(act.ActivityType.Category(), obj)
	if err != nil {
		n.logger.WithError(err).WithFields(logging.Fields{
			"activity_id":   act.ID,
			"activity_type": act.ActivityType,
		}).Debug("メタデータのカテゴリ固有部分を破棄しました")
		return md
	}
	md.Payload = payload
	return md
}
