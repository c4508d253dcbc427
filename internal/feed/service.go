package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/neighborly/internal/activity"
	"github.com/nao1215/neighborly/internal/refresh"
	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// ErrInvalidRecord は取り込んだレコードを正規化できないことを表す。
var ErrInvalidRecord = errors.New("不正なレコード")

// Query はフィード取得の条件。
type Query struct {
	// NeighborhoodID は対象の近隣コミュニティ。
	NeighborhoodID string
	// ViewerID は閲覧者のユーザーID。非公開のアクティビティは本人にのみ表示される。
	ViewerID string
	// Limit は最大件数。
	Limit int
}

// Result はフィードの内容。
type Result struct {
	// Activities は表示対象のアクティビティ。新しい順。
	Activities []activity.Activity `json:"activities"`
	// Groups はActivitiesを実行者・カテゴリ・時間枠でまとめたもの。
	Groups []activity.Group `json:"groups"`
}

// Detail はアクティビティ詳細の内容。
type Detail struct {
	// Activity は対象のアクティビティ。
	Activity activity.Activity `json:"activity"`
	// Removed は元データが削除済みかどうか。
	Removed bool `json:"removed"`
	// DisplayTitle は表示用のタイトル。削除済みの場合は削除前のタイトル。
	DisplayTitle string `json:"display_title"`
}

// Service はレコードの取り込みとフィードの組み立てを行う。
type Service struct {
	store      Store
	normalizer *activity.Normalizer
	bucket     activity.Bucketer
	emitter    refresh.Emitter
	logger     logging.Logger
}

// NewService は新しいServiceを生成する。bucketがnilの場合はUTCの暦日でまとめる。
func NewService(store Store, bucket activity.Bucketer, emitter refresh.Emitter, logger logging.Logger) *Service {
	if bucket == nil {
		bucket = activity.DayBucket(nil)
	}
	return &Service{
		store:      store,
		normalizer: activity.NewNormalizer(logger),
		bucket:     bucket,
		emitter:    emitter,
		logger:     logger,
	}
}

// Ingest はレコードを正規化して保存し、リフレッシュイベントを発行する。
// 正規化できないレコードは保存せずにエラーを返す。
func (s *Service) Ingest(ctx context.Context, rec activity.RawRecord) (activity.Activity, error) {
	act, err := s.normalizer.Normalize(rec)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := s.store.Upsert(ctx, rec, act); err != nil {
		return activity.Activity{}, err
	}

	for _, t := range refreshTypes(rec.Kind, act) {
		ev, err := event.New(t, event.RecordData{Kind: string(rec.Kind), RecordID: act.ID})
		if err != nil {
			s.logger.WithError(err).WithField("event_type", t).Error("イベントの生成に失敗しました")
			continue
		}
		if s.emitter != nil {
			s.emitter.Publish(ev.ForNeighborhood(act.NeighborhoodID))
		}
	}

	s.logger.WithFields(logging.Fields{
		"kind":            rec.Kind,
		"activity_id":     act.ID,
		"activity_type":   act.ActivityType,
		"neighborhood_id": act.NeighborhoodID,
	}).Debug("レコードを取り込みました")
	return act, nil
}

// refreshTypes は取り込んだレコードの種類に応じて発行するイベントを返す。
// 末尾は常にactivities-updated。
func refreshTypes(kind activity.SourceKind, act activity.Activity) []event.Type {
	var domain event.Type
	switch kind {
	case activity.KindEvents:
		domain = event.TypeEventSubmitted
		if act.Removed() {
			domain = event.TypeEventDeleted
		}
	case activity.KindEventRSVPs:
		domain = event.TypeEventRSVPUpdated
	case activity.KindSkills, activity.KindSkillSessions:
		domain = event.TypeSkillsUpdated
	case activity.KindGoods:
		domain = event.TypeGoodsUpdated
	case activity.KindSafety:
		domain = event.TypeSafetyUpdated
	case activity.KindCare:
		domain = event.TypeCareUpdated
	case activity.KindGroupUpdates, activity.KindGroupMembers:
		domain = event.TypeGroupsUpdated
	}
	if domain == "" {
		return []event.Type{event.TypeActivitiesUpdated}
	}
	return []event.Type{domain, event.TypeActivitiesUpdated}
}

// Feed は閲覧者に見えるアクティビティを新しい順に並べ、グループ化して返す。
func (s *Service) Feed(ctx context.Context, q Query) (Result, error) {
	records, err := s.store.ListFeed(ctx, q.NeighborhoodID, q.ViewerID, q.Limit)
	if err != nil {
		return Result{}, err
	}

	acts := activity.Visible(s.normalizer.NormalizeAll(records), q.ViewerID)
	activity.SortNewestFirst(acts)
	groups := activity.GroupActivities(acts, s.bucket)
	if groups == nil {
		groups = []activity.Group{}
	}
	return Result{Activities: acts, Groups: groups}, nil
}

// Detail はアクティビティの詳細を返す。削除済みでも返すが、他人の非公開アクティビティはErrNotFoundとなる。
func (s *Service) Detail(ctx context.Context, id, viewerID string) (Detail, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	act, err := s.normalizer.Normalize(rec)
	if err != nil {
		return Detail{}, fmt.Errorf("保存済みレコードの正規化に失敗: %w", err)
	}
	if !act.IsPublic && act.ActorID != viewerID {
		return Detail{}, ErrNotFound
	}
	return Detail{Activity: act, Removed: act.Removed(), DisplayTitle: act.DisplayTitle()}, nil
}
