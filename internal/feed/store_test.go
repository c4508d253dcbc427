package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/neighborly/internal/activity"
	"github.com/nao1215/neighborly/pkg/logging"
)

// upsert はレコードを正規化してストアに保存する。
func upsert(t *testing.T, s Store, rec activity.RawRecord) {
	t.Helper()

	act, err := activity.NewNormalizer(logging.Discard()).Normalize(rec)
	if err != nil {
		t.Fatalf("正規化に失敗: %v", err)
	}
	if err := s.Upsert(context.Background(), rec, act); err != nil {
		t.Fatalf("Upsert()でエラーが発生: %v", err)
	}
}

// TestSQLStore はSQLStoreの保存と取得を検証する。
func TestSQLStore(t *testing.T) {
	t.Parallel()

	t.Run("同じ種類とIDの行が上書きされること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		s := NewSQLStore(db)
		upsert(t, s, record(activity.KindGoods, map[string]any{"id": "g1", "user_id": "u1", "title": "Ladder", "request_type": "offer", "neighborhood_id": "n1", "created_at": at(0)}))
		upsert(t, s, record(activity.KindGoods, map[string]any{"id": "g1", "user_id": "u1", "title": "Ladder", "request_type": "offer", "neighborhood_id": "n1", "created_at": at(0), "is_public": false}))

		var count int
		if err := db.Get(&count, `SELECT COUNT(*) FROM source_records`); err != nil {
			t.Fatalf("件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("行数 = %d, want 1", count)
		}

		records, err := s.ListFeed(context.Background(), "n1", "u2", 10)
		if err != nil {
			t.Fatalf("ListFeed()でエラーが発生: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("非公開に変わった行が他人のフィードに含まれている: %d件", len(records))
		}
	})

	t.Run("同じIDでも種類が違えば別の行になること", func(t *testing.T) {
		t.Parallel()

		s := NewSQLStore(openTestDB(t))
		upsert(t, s, record(activity.KindEvents, map[string]any{"id": "x1", "host_id": "u1", "title": "Party", "neighborhood_id": "n1", "created_at": at(0)}))
		upsert(t, s, record(activity.KindSafety, map[string]any{"id": "x1", "author_id": "u2", "title": "Broken light", "neighborhood_id": "n1", "created_at": at(time.Minute)}))

		records, err := s.ListFeed(context.Background(), "n1", "u3", 10)
		if err != nil {
			t.Fatalf("ListFeed()でエラーが発生: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("件数 = %d, want 2", len(records))
		}
		if records[0].Kind != activity.KindSafety {
			t.Errorf("先頭の種類 = %q, want safety", records[0].Kind)
		}
	})

	t.Run("ListFeedが削除済みを除き新しい順に返すこと", func(t *testing.T) {
		t.Parallel()

		s := NewSQLStore(openTestDB(t))
		upsert(t, s, record(activity.KindEvents, map[string]any{"id": "e1", "host_id": "u1", "title": "Old", "neighborhood_id": "n1", "created_at": at(0)}))
		upsert(t, s, record(activity.KindEvents, map[string]any{"id": "e2", "host_id": "u1", "title": "New", "neighborhood_id": "n1", "created_at": at(time.Hour)}))
		upsert(t, s, record(activity.KindEvents, map[string]any{"id": "e3", "host_id": "u1", "title": "", "neighborhood_id": "n1", "created_at": at(2 * time.Hour),
			"metadata": map[string]any{"deleted": true, "original_title": "Gone"}}))

		records, err := s.ListFeed(context.Background(), "n1", "u1", 10)
		if err != nil {
			t.Fatalf("ListFeed()でエラーが発生: %v", err)
		}
		acts := activity.NewNormalizer(logging.Discard()).NormalizeAll(records)
		if len(acts) != 2 || acts[0].ID != "e2" || acts[1].ID != "e1" {
			t.Errorf("Activities = %+v", acts)
		}
	})

	t.Run("Findが削除済みのレコードも返すこと", func(t *testing.T) {
		t.Parallel()

		s := NewSQLStore(openTestDB(t))
		upsert(t, s, record(activity.KindEvents, map[string]any{"id": "e3", "host_id": "u1", "title": "", "neighborhood_id": "n1", "created_at": at(0),
			"metadata": map[string]any{"deleted": true, "original_title": "Gone"}}))

		rec, err := s.Find(context.Background(), "e3")
		if err != nil {
			t.Fatalf("Find()でエラーが発生: %v", err)
		}
		if rec.Kind != activity.KindEvents {
			t.Errorf("Kind = %q, want events", rec.Kind)
		}
	})

	t.Run("存在しないIDでErrNotFoundが返ること", func(t *testing.T) {
		t.Parallel()

		s := NewSQLStore(openTestDB(t))
		if _, err := s.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}
