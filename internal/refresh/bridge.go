package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// DefaultChannel はリフレッシュイベントを中継するRedisチャンネル名。
const DefaultChannel = "neighborly:refresh"

// externalOrigin はOriginを持たないイベント（DBトリガーなど上流からの通知）に付けるOrigin。
const externalOrigin = "external"

// RedisBridge はバスのイベントをRedisのチャンネル経由で他のプロセスと共有する。
// このプロセスで発行したイベントだけを送信し、受信したイベントは送信元を保ったままバスに流す。
type RedisBridge struct {
	bus     *Bus
	client  goredis.UniversalClient
	channel string
	logger  logging.Logger

	outbound    chan *event.Event
	unsubscribe func()
	cancel      context.CancelFunc
	pubsub      *goredis.PubSub
	done        chan struct{}
}

// OpenRedis はredis://形式のURLからクライアントを生成し、疎通を確認する。
func OpenRedis(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return client, nil
}

// NewRedisBridge は新しいRedisBridgeを生成する。channelが空の場合はDefaultChannelを使う。
func NewRedisBridge(bus *Bus, client goredis.UniversalClient, channel string, logger logging.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		bus:      bus,
		client:   client,
		channel:  channel,
		logger:   logger.WithField("channel", channel),
		outbound: make(chan *event.Event, 256),
	}
}

// Start はチャンネルの購読を確立し、送受信のゴルーチンを開始する。
// 購読の確立に失敗した場合はエラーを返す。以後の再接続はgo-redisが行う。
func (r *RedisBridge) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("Redisチャンネルの購読に失敗: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.pubsub = pubsub
	r.cancel = cancel
	r.done = make(chan struct{})
	r.unsubscribe = r.bus.OnAny(r.enqueue)

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		r.send(ctx)
	}()
	go func() {
		defer close(r.done)
		r.receive(ctx, pubsub.Channel())
		<-sendDone
	}()

	r.logger.Info("リフレッシュイベントの中継を開始しました")
	return nil
}

// enqueue はバスから呼ばれる。ブロックしないよう、送信キューが一杯の場合は破棄する。
func (r *RedisBridge) enqueue(ev *event.Event) {
	if ev.Origin != r.bus.Origin() {
		return
	}
	select {
	case r.outbound <- ev:
	default:
		r.logger.WithField("event_type", ev.Type).Warn("送信キューが一杯のためイベントを破棄しました")
	}
}

func (r *RedisBridge) send(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.outbound:
			payload, err := event.Marshal(ev)
			if err != nil {
				r.logger.WithError(err).Error("イベントのシリアライズに失敗しました")
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = r.client.Publish(pubCtx, r.channel, payload).Err()
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WithError(err).WithField("event_type", ev.Type).Warn("Redisへの送信に失敗しました")
			}
		}
	}
}

func (r *RedisBridge) receive(ctx context.Context, ch <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := event.Unmarshal([]byte(msg.Payload))
			if err != nil {
				r.logger.WithError(err).Warn("受信したイベントを読み取れません")
				continue
			}
			if ev.Origin == r.bus.Origin() {
				continue
			}
			if ev.Origin == "" {
				ev.Origin = externalOrigin
			}
			r.bus.Publish(ev)
		}
	}
}

// Close は中継を止める。Startしていない場合は何もしない。
func (r *RedisBridge) Close() error {
	if r.cancel == nil {
		return nil
	}
	r.unsubscribe()
	r.cancel()
	err := r.pubsub.Close()
	<-r.done
	r.cancel = nil
	return err
}
