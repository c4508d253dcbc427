package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// TestSubscriber はイベント・プッシュ・ポーリングによる再取得を検証する。
func TestSubscriber(t *testing.T) {
	t.Parallel()

	t.Run("開始時に1回取得し、続いたイベントは1回の再取得にまとまること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.NotificationTypes,
			Debounce:     30 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()

		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		bus.Emit(event.TypeNotificationCreated)
		bus.Emit(event.TypeNotificationRead)
		bus.Emit(event.TypeNotificationArchived)

		waitFor(t, time.Second, func() bool { return n.Load() == 2 })
		time.Sleep(60 * time.Millisecond)
		if n.Load() != 2 {
			t.Errorf("取得回数 = %d, want 2", n.Load())
		}
	})

	t.Run("購読していない種類のイベントでは再取得しないこと", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.FeedTypes,
			Debounce:     10 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()
		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		bus.Emit(event.TypeNotificationCreated)
		time.Sleep(40 * time.Millisecond)
		if n.Load() != 1 {
			t.Errorf("取得回数 = %d, want 1", n.Load())
		}
	})

	t.Run("別のユーザー宛てのイベントは無視し、宛先なしのイベントは受け取ること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.NotificationTypes,
			UserID:       "user-1",
			Debounce:     10 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()
		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		other, _ := event.New(event.TypeNotificationCreated, nil)
		bus.Publish(other.ForUser("user-2"))
		time.Sleep(40 * time.Millisecond)
		if n.Load() != 1 {
			t.Fatalf("別ユーザー宛てで再取得された: %d", n.Load())
		}

		mine, _ := event.New(event.TypeNotificationCreated, nil)
		bus.Publish(mine.ForUser("user-1"))
		waitFor(t, time.Second, func() bool { return n.Load() == 2 })

		bus.Emit(event.TypeNotificationsAllRead)
		waitFor(t, time.Second, func() bool { return n.Load() == 3 })
	})

	t.Run("別のコミュニティ宛てのイベントは無視すること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:         event.FeedTypes,
			NeighborhoodID: "hood-1",
			Debounce:       10 * time.Millisecond,
			PollInterval:   -1,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()
		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		ev, _ := event.New(event.TypeActivitiesUpdated, nil)
		bus.Publish(ev.ForNeighborhood("hood-2"))
		time.Sleep(40 * time.Millisecond)
		if n.Load() != 1 {
			t.Errorf("取得回数 = %d, want 1", n.Load())
		}
	})

	t.Run("ポーリング間隔ごとに再取得されること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.FeedTypes,
			PollInterval: 15 * time.Millisecond,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()

		waitFor(t, time.Second, func() bool { return n.Load() >= 3 })
	})

	t.Run("Pushで再取得が予約されること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Debounce:     10 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()
		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		sub.Push()
		sub.Push()
		waitFor(t, time.Second, func() bool { return n.Load() == 2 })
	})

	t.Run("取得中に届いたRefreshは1回の追加取得にまとまること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		release := make(chan struct{})
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{PollInterval: -1}, func(context.Context) error {
			n.Add(1)
			<-release
			return nil
		}, logging.Discard())

		var wg sync.WaitGroup
		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			_ = sub.Refresh(context.Background())
		}()
		<-started
		waitFor(t, time.Second, func() bool { return n.Load() == 1 })

		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = sub.Refresh(context.Background())
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if n.Load() != 2 {
			t.Errorf("取得回数 = %d, want 2", n.Load())
		}
		if sub.Fetches() != 2 {
			t.Errorf("Fetches() = %d, want 2", sub.Fetches())
		}
	})

	t.Run("同時に始まったRefreshは1回の取得を共有すること", func(t *testing.T) {
		t.Parallel()

		var n atomic.Int32
		gate := make(chan struct{})
		sub := NewSubscriber(NewBus(logging.Discard()), SubscriberConfig{PollInterval: -1}, func(context.Context) error {
			<-gate
			n.Add(1)
			return nil
		}, logging.Discard())

		// 取得を止めておき、全員が要求を出してから再開する
		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = sub.Refresh(context.Background())
			}()
		}
		waitFor(t, time.Second, func() bool { return sub.requested.Load() == 5 })
		close(gate)
		wg.Wait()

		if n.Load() > 2 {
			t.Errorf("取得回数 = %d, want <= 2", n.Load())
		}
	})

	t.Run("取得中に届いたイベントで取得後の最新の内容がもう一度取られること", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var version atomic.Int32
		release := make(chan struct{})
		var mu sync.Mutex
		var seen []int32
		var calls atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.NotificationTypes,
			Debounce:     10 * time.Millisecond,
			PollInterval: -1,
		}, func(context.Context) error {
			v := version.Load()
			if calls.Add(1) == 1 {
				<-release
			}
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
			return nil
		}, logging.Discard())
		sub.Start(context.Background())
		defer sub.Close()

		waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
		version.Store(1)
		bus.Emit(event.TypeNotificationCreated)
		// デバウンス後のRefreshが実行中の取得に合流するまで待つ
		waitFor(t, time.Second, func() bool { return sub.requested.Load() >= 2 })
		close(release)

		waitFor(t, time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 2
		})
		mu.Lock()
		defer mu.Unlock()
		if seen[0] != 0 || seen[1] != 1 {
			t.Errorf("取得した版 = %v, want [0 1]", seen)
		}
	})

	t.Run("取得のエラーが呼び出し元に返ること", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("db down")
		sub := NewSubscriber(NewBus(logging.Discard()), SubscriberConfig{PollInterval: -1},
			func(context.Context) error { return wantErr }, logging.Discard())
		if err := sub.Refresh(context.Background()); !errors.Is(err, wantErr) {
			t.Errorf("err = %v, want %v", err, wantErr)
		}
	})

	t.Run("Close後はイベントもポーリングも再取得を起こさないこと", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		var n atomic.Int32
		sub := NewSubscriber(bus, SubscriberConfig{
			Events:       event.NotificationTypes,
			Debounce:     50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		}, func(context.Context) error { n.Add(1); return nil }, logging.Discard())
		sub.Start(context.Background())
		waitFor(t, time.Second, func() bool { return n.Load() >= 1 })

		bus.Emit(event.TypeNotificationCreated)
		sub.Close()
		sub.Close()
		after := n.Load()

		if got := bus.Subscribers(event.TypeNotificationCreated); got != 0 {
			t.Errorf("Close後も購読が残っている: %d", got)
		}
		bus.Emit(event.TypeNotificationCreated)
		sub.Push()
		_ = sub.Refresh(context.Background())
		time.Sleep(100 * time.Millisecond)
		if n.Load() != after {
			t.Errorf("Close後に取得された: %d -> %d", after, n.Load())
		}
	})

	t.Run("Start前のCloseとStart後のStartは何もしないこと", func(t *testing.T) {
		t.Parallel()

		bus := NewBus(logging.Discard())
		sub := NewSubscriber(bus, SubscriberConfig{Events: event.FeedTypes, PollInterval: -1},
			func(context.Context) error { return nil }, logging.Discard())
		sub.Close()
		sub.Start(context.Background())
		if got := bus.Subscribers(event.TypeActivitiesUpdated); got != 0 {
			t.Errorf("Close済みのSubscriberが購読した: %d", got)
		}

		sub2 := NewSubscriber(bus, SubscriberConfig{Events: []event.Type{event.TypeActivitiesUpdated, event.TypeActivitiesUpdated}, PollInterval: -1},
			func(context.Context) error { return nil }, logging.Discard())
		sub2.Start(context.Background())
		sub2.Start(context.Background())
		defer sub2.Close()
		if got := bus.Subscribers(event.TypeActivitiesUpdated); got != 1 {
			t.Errorf("Subscribers() = %d, want 1", got)
		}
	})
}
