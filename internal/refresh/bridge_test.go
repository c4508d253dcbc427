package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// recorder はバスに届いたイベントを記録する。
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) handle(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func startBridge(t *testing.T, mr *miniredis.Miniredis) (*Bus, *goredis.Client) {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewBus(logging.Discard())
	bridge := NewRedisBridge(bus, client, "test:refresh", logging.Discard())
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = bridge.Close() })
	return bus, client
}

// TestRedisBridge はプロセス間の中継を検証する。
func TestRedisBridge(t *testing.T) {
	t.Parallel()

	t.Run("一方のバスのイベントが他方のバスに届き、折り返さないこと", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		busA, _ := startBridge(t, mr)
		busB, _ := startBridge(t, mr)

		recA, recB := &recorder{}, &recorder{}
		busA.OnAny(recA.handle)
		busB.OnAny(recB.handle)

		ev, _ := event.New(event.TypeNotificationCreated, event.NotificationData{NotificationID: "n-1"})
		busA.Publish(ev.ForUser("user-1"))

		waitFor(t, 2*time.Second, func() bool { return recB.count(event.TypeNotificationCreated) == 1 })
		time.Sleep(50 * time.Millisecond)

		if got := recA.count(event.TypeNotificationCreated); got != 1 {
			t.Errorf("発行元のバスでの受信回数 = %d, want 1", got)
		}
		if got := recB.count(event.TypeNotificationCreated); got != 1 {
			t.Errorf("受信側のバスでの受信回数 = %d, want 1", got)
		}

		recB.mu.Lock()
		got := recB.events[0]
		recB.mu.Unlock()
		if got.UserID != "user-1" || got.Origin != busA.Origin() {
			t.Errorf("宛先や送信元が失われた: %+v", got)
		}
		data, err := event.DecodeData[event.NotificationData](got)
		if err != nil || data.NotificationID != "n-1" {
			t.Errorf("data = %+v, err = %v", data, err)
		}
	})

	t.Run("上流から直接発行されたイベントがバスに届くこと", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		bus, client := startBridge(t, mr)
		rec := &recorder{}
		bus.OnAny(rec.handle)

		payload := `{"id":"x","type":"skills-updated","neighborhood_id":"hood-1","created_at":"2026-05-01T00:00:00Z"}`
		if err := client.Publish(context.Background(), "test:refresh", payload).Err(); err != nil {
			t.Fatalf("Publishに失敗: %v", err)
		}

		waitFor(t, 2*time.Second, func() bool { return rec.count(event.TypeSkillsUpdated) == 1 })
		rec.mu.Lock()
		origin := rec.events[0].Origin
		rec.mu.Unlock()
		if origin != externalOrigin {
			t.Errorf("Origin = %q, want %q", origin, externalOrigin)
		}
	})

	t.Run("不正なメッセージは無視されること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		bus, client := startBridge(t, mr)
		rec := &recorder{}
		bus.OnAny(rec.handle)

		ctx := context.Background()
		_ = client.Publish(ctx, "test:refresh", `{broken`).Err()
		_ = client.Publish(ctx, "test:refresh", `{"id":"y","type":"media-uploaded"}`).Err()
		_ = client.Publish(ctx, "test:refresh", `{"id":"z","type":"goods-updated"}`).Err()

		waitFor(t, 2*time.Second, func() bool { return rec.count(event.TypeGoodsUpdated) == 1 })
		rec.mu.Lock()
		n := len(rec.events)
		rec.mu.Unlock()
		if n != 1 {
			t.Errorf("受信件数 = %d, want 1", n)
		}
	})

	t.Run("Redisに接続できない場合Startがエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
		defer client.Close()

		bridge := NewRedisBridge(NewBus(logging.Discard()), client, "", logging.Discard())
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := bridge.Start(ctx); err == nil {
			t.Fatal("Start()がエラーを返すべきだが、nilが返った")
		}
		if err := bridge.Close(); err != nil {
			t.Errorf("Start失敗後のClose()でエラー: %v", err)
		}
	})
}

// TestOpenRedis はURLからのクライアント生成を検証する。
func TestOpenRedis(t *testing.T) {
	t.Parallel()

	t.Run("起動中のRedisに接続できること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0")
		if err != nil {
			t.Fatalf("OpenRedis()でエラーが発生: %v", err)
		}
		defer client.Close()
	})

	t.Run("不正なURLでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := OpenRedis(context.Background(), "not-a-url"); err == nil {
			t.Fatal("OpenRedis()がエラーを返すべきだが、nilが返った")
		}
	})
}
