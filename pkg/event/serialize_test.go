package event

import (
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("NotificationDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		before := time.Now().UTC()
		ev, err := New(TypeNotificationCreated, NotificationData{NotificationID: "n-1", TemplateID: "event_rsvp"})
		after := time.Now().UTC()
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.Type != TypeNotificationCreated {
			t.Errorf("Type = %q, want %q", ev.Type, TypeNotificationCreated)
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		data, err := DecodeData[NotificationData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.NotificationID != "n-1" || data.TemplateID != "event_rsvp" {
			t.Errorf("data = %+v", data)
		}
	})

	t.Run("dataがnilの場合Dataが空になること", func(t *testing.T) {
		t.Parallel()

		ev, err := New(TypeActivitiesUpdated, nil)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if len(ev.Data) != 0 {
			t.Errorf("Data = %s, want empty", ev.Data)
		}

		data, err := DecodeData[RecordData](ev)
		if err != nil {
			t.Fatalf("空DataのDecodeData()でエラーが発生: %v", err)
		}
		if data.Kind != "" {
			t.Errorf("Kind = %q, want empty", data.Kind)
		}
	})

	t.Run("シリアライズできないデータでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(TypeActivitiesUpdated, map[string]any{"ch": make(chan int)}); err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestMarshalRoundTrip はワイヤー形式での送受信で宛先情報が保たれることを検証する。
func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	ev, err := New(TypeNotificationRead, NotificationData{NotificationID: "n-9"})
	if err != nil {
		t.Fatalf("New()でエラーが発生: %v", err)
	}
	ev.ForUser("user-1").ForNeighborhood("hood-1")
	ev.Origin = "proc-a"

	b, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal()でエラーが発生: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal()でエラーが発生: %v", err)
	}

	if got.UserID != "user-1" || got.NeighborhoodID != "hood-1" || got.Origin != "proc-a" {
		t.Errorf("宛先情報が失われた: %+v", got)
	}
}

// TestUnmarshalRejectsUnknownType は未定義種別のイベントを拒否することを検証する。
func TestUnmarshalRejectsUnknownType(t *testing.T) {
	t.Parallel()

	if _, err := Unmarshal([]byte(`{"id":"x","type":"MediaUploaded"}`)); err == nil {
		t.Fatal("未定義の種別でエラーが返るべき")
	}
	if _, err := Unmarshal([]byte(`{not json}`)); err == nil {
		t.Fatal("不正なJSONでエラーが返るべき")
	}
}
