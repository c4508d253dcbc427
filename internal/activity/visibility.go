package activity

import (
	"cmp"
	"slices"
)

// Visible はviewerIDのユーザーのフィードに表示するアクティビティだけを返す。
// 削除済みのものと、他人の非公開のものを除く。入力の順序は保たれる。
func Visible(activities []Activity, viewerID string) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a.Removed() {
			continue
		}
		if !a.IsPublic && a.ActorID != viewerID {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SortNewestFirst は発生日時の新しい順に並べ替える。同時刻の場合はIDの降順。
func SortNewestFirst(activities []Activity) {
	slices.SortStableFunc(activities, func(a, b Activity) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
