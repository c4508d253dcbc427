package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// TestServeStream はWebSocketでスナップショットが送られることを検証する。
func TestServeStream(t *testing.T) {
	t.Parallel()

	bus := NewBus(logging.Discard())
	var version atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeStream(w, r, bus, SubscriberConfig{
			Events:       event.NotificationTypes,
			UserID:       "user-1",
			Debounce:     10 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) (any, error) {
			return map[string]int32{"version": version.Add(1)}, nil
		}, logging.Discard())
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗: %v", err)
	}
	defer conn.Close()

	readFrame := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("フレームの受信に失敗: %v", err)
		}
		if f.Type != "snapshot" {
			t.Errorf("Type = %q, want snapshot", f.Type)
		}
		return f.Data
	}

	if got := readFrame()["version"]; got != float64(1) {
		t.Errorf("初回のversion = %v, want 1", got)
	}

	// 購読が登録されるまで待ってからイベントを発行する
	waitFor(t, time.Second, func() bool { return bus.Subscribers(event.TypeNotificationCreated) == 1 })
	ev, _ := event.New(event.TypeNotificationCreated, nil)
	bus.Publish(ev.ForUser("user-1"))
	if got := readFrame()["version"]; got != float64(2) {
		t.Errorf("イベント後のversion = %v, want 2", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("送信に失敗: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"action": "refresh"}); err != nil {
		t.Fatalf("送信に失敗: %v", err)
	}
	if got := readFrame()["version"]; got != float64(3) {
		t.Errorf("refresh要求後のversion = %v, want 3", got)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return bus.Subscribers(event.TypeNotificationCreated) == 0 })
}
