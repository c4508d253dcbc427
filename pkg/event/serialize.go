package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。nilの場合Dataは空になる。
func New(eventType Type, data any) (*Event, error) {
	ev := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
	if data == nil {
		return ev, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	ev.Data = jsonData
	return ev, nil
}

// ForUser は対象ユーザーを設定したイベントを返す。
func (e *Event) ForUser(userID string) *Event {
	e.UserID = userID
	return e
}

// ForNeighborhood は対象コミュニティを設定したイベントを返す。
func (e *Event) ForNeighborhood(neighborhoodID string) *Event {
	e.NeighborhoodID = neighborhoodID
	return e
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if len(e.Data) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Marshal はイベントをワイヤー形式（JSON）に変換する。
func Marshal(e *Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Unmarshal はワイヤー形式（JSON）からイベントを復元する。
// 未定義のイベント種別はエラーとなる。
func Unmarshal(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("未定義のイベント種別: %q", e.Type)
	}
	return &e, nil
}
