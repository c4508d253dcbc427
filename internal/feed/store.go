package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/nao1215/neighborly/internal/activity"
)

// ErrNotFound は対象のレコードが存在しないことを表す。
var ErrNotFound = errors.New("アクティビティが見つかりません")

// Store は取り込んだレコードの永続化を行う。
type Store interface {
	// Upsert は正規化済みの内容を索引にしてレコードを保存する。同じ種類とIDの行は上書きする。
	Upsert(ctx context.Context, rec activity.RawRecord, act activity.Activity) error
	// ListFeed はコミュニティの、viewerIDから見える可能性のあるレコードを新しい順に最大limit件返す。
	ListFeed(ctx context.Context, neighborhoodID, viewerID string, limit int) ([]activity.RawRecord, error)
	// Find はIDでレコードを取得する。削除済みのレコードも返す。
	Find(ctx context.Context, id string) (activity.RawRecord, error)
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

// recordRow はsource_recordsの1行。
type recordRow struct {
	Kind           string         `db:"kind"`
	ID             string         `db:"id"`
	NeighborhoodID string         `db:"neighborhood_id"`
	ActorID        string         `db:"actor_id"`
	IsPublic       bool           `db:"is_public"`
	Deleted        bool           `db:"deleted"`
	Data           types.JSONText `db:"data"`
	CreatedAt      time.Time      `db:"created_at"`
	IngestedAt     time.Time      `db:"ingested_at"`
}

func (r recordRow) raw() activity.RawRecord {
	return activity.RawRecord{Kind: activity.SourceKind(r.Kind), Data: json.RawMessage(r.Data)}
}

// Upsert implements Store.
func (s *SQLStore) Upsert(ctx context.Context, rec activity.RawRecord, act activity.Activity) error {
	row := recordRow{
		Kind:           string(rec.Kind),
		ID:             act.ID,
		NeighborhoodID: act.NeighborhoodID,
		ActorID:        act.ActorID,
		IsPublic:       act.IsPublic,
		Deleted:        act.Removed(),
		Data:           types.JSONText(rec.Data),
		CreatedAt:      act.CreatedAt.UTC(),
		IngestedAt:     s.now(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO source_records (kind, id, neighborhood_id, actor_id, is_public, deleted, data, created_at, ingested_at)
		VALUES (:kind, :id, :neighborhood_id, :actor_id, :is_public, :deleted, :data, :created_at, :ingested_at)
		ON CONFLICT (kind, id) DO UPDATE SET
			neighborhood_id = excluded.neighborhood_id,
			actor_id = excluded.actor_id,
			is_public = excluded.is_public,
			deleted = excluded.deleted,
			data = excluded.data,
			created_at = excluded.created_at,
			ingested_at = excluded.ingested_at`, row)
	if err != nil {
		return fmt.Errorf("レコードの保存に失敗: %w", err)
	}
	return nil
}

// ListFeed implements Store.
func (s *SQLStore) ListFeed(ctx context.Context, neighborhoodID, viewerID string, limit int) ([]activity.RawRecord, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT kind, id, neighborhood_id, actor_id, is_public, deleted, data, created_at, ingested_at
		FROM source_records
		WHERE neighborhood_id = ? AND deleted = 0 AND (is_public = 1 OR actor_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		neighborhoodID, viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗: %w", err)
	}
	records := make([]activity.RawRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.raw())
	}
	return records, nil
}

// Find implements Store. 同じIDが複数の種類にある場合は最後に取り込んだものを返す。
func (s *SQLStore) Find(ctx context.Context, id string) (activity.RawRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `
		SELECT kind, id, neighborhood_id, actor_id, is_public, deleted, data, created_at, ingested_at
		FROM source_records
		WHERE id = ?
		ORDER BY ingested_at DESC
		LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.RawRecord{}, ErrNotFound
	}
	if err != nil {
		return activity.RawRecord{}, fmt.Errorf("アクティビティの取得に失敗: %w", err)
	}
	return row.raw(), nil
}
