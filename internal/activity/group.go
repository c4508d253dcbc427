package activity

import (
	"fmt"
	"time"
)

// Bucketer は日時を時間枠のキーに変換する。
type Bucketer func(time.Time) string

// DayBucket はlocのタイムゾーンでの暦日を時間枠とする。locがnilの場合はUTC。
func DayBucket(loc *time.Location) Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return func(t time.Time) string {
		return t.In(loc).Format("2006-01-02")
	}
}

// HourBucket はlocのタイムゾーンでの1時間単位を時間枠とする。locがnilの場合はUTC。
func HourBucket(loc *time.Location) Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return func(t time.Time) string {
		return t.In(loc).Format("2006-01-02T15")
	}
}

// BucketerFor は "day" または "hour" から時間枠を選ぶ。空文字列は "day" として扱う。
func BucketerFor(window string, loc *time.Location) (Bucketer, error) {
	switch window {
	case "", "day":
		return DayBucket(loc), nil
	case "hour":
		return HourBucket(loc), nil
	default:
		return nil, fmt.Errorf("未知のグループ化の時間枠: %q", window)
	}
}

// Group は同じ実行者・同じカテゴリ・同じ時間枠のアクティビティのまとまり。
type Group struct {
	// Key は実行者ID・カテゴリ・時間枠から作るキー。
	Key string `json:"key"`
	// Primary はまとまりの代表。最初に現れた（最も新しい）アクティビティ。
	Primary Activity `json:"primary"`
	// Activities はまとまりに含まれる全アクティビティ。新しい順。
	Activities []Activity `json:"activities"`
	// Count はActivitiesの件数。
	Count int `json:"count"`
}

// GroupActivities は新しい順に並んだアクティビティのうち、連続して同じキーを持つものをまとめる。
// 入力は変更しない。bucketがnilの場合はUTCの暦日を使う。
func GroupActivities(activities []Activity, bucket Bucketer) []Group {
	if bucket == nil {
		bucket = DayBucket(time.UTC)
	}

	var groups []Group
	for _, a := range activities {
		key := a.ActorID + ":" + a.ActivityType.Category() + ":" + bucket(a.CreatedAt)
		if n := len(groups); n > 0 && groups[n-1].Key == key {
			groups[n-1].Activities = append(groups[n-1].Activities, a)
			groups[n-1].Count++
			continue
		}
		groups = append(groups, Group{
			Key:        key,
			Primary:    a,
			Activities: []Activity{a},
			Count:      1,
		})
	}
	return groups
}
