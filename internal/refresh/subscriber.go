package refresh

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
)

// DefaultPollInterval はイベントが届かなくても再取得する間隔。
const DefaultPollInterval = 30 * time.Second

// FetchFunc は画面の内容を取り直す処理。何度呼ばれても同じ結果になる必要がある。
type FetchFunc func(ctx context.Context) error

// SubscriberConfig はSubscriberの設定。
type SubscriberConfig struct {
	// Events は購読するイベントの種類。
	Events []event.Type
	// UserID が空でない場合、別のユーザー宛てのイベントは無視する。
	UserID string
	// NeighborhoodID が空でない場合、別のコミュニティ宛てのイベントは無視する。
	NeighborhoodID string
	// Debounce はイベントから再取得までの待ち時間。0以下の場合はDefaultDebounce。
	Debounce time.Duration
	// PollInterval は定期的な再取得の間隔。0の場合はDefaultPollInterval、負の場合はポーリングしない。
	PollInterval time.Duration
}

// Subscriber はバスのイベント・プッシュ通知・定期ポーリングを1つの再取得にまとめる。
type Subscriber struct {
	bus    *Bus
	cfg    SubscriberConfig
	fetch  FetchFunc
	logger logging.Logger

	group     singleflight.Group
	debouncer *Debouncer
	fetches   atomic.Int64
	// requested は再取得の要求ごとに増える世代番号。
	requested atomic.Uint64
	// covered は成功した取得のうち、開始時点で最も新しい世代番号。
	covered atomic.Uint64

	mu          sync.Mutex
	unsubscribe []func()
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
	ctx         context.Context
}

// NewSubscriber は新しいSubscriberを生成する。Startを呼ぶまでイベントは受け取らない。
func NewSubscriber(bus *Bus, cfg SubscriberConfig, fetch FetchFunc, logger logging.Logger) *Subscriber {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &Subscriber{
		bus:    bus,
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
		ctx:    context.Background(),
	}
	s.debouncer = NewDebouncer(cfg.Debounce, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		_ = s.Refresh(ctx)
	})
	return s
}

// Start はイベントの購読と定期ポーリングを開始し、最初の取得を行う。
// ctxがキャンセルされるとポーリングは止まるが、購読の解除にはCloseを呼ぶ。
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	s.done = make(chan struct{})

	types := slices.Clone(s.cfg.Events)
	slices.Sort(types)
	for _, t := range slices.Compact(types) {
		s.unsubscribe = append(s.unsubscribe, s.bus.On(t, s.onEvent))
	}

	go s.loop(ctx, s.done)
}

func (s *Subscriber) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	_ = s.Refresh(ctx)
	if s.cfg.PollInterval < 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// onEvent はバスから呼ばれる。宛先が合うイベントだけ再取得を予約する。
func (s *Subscriber) onEvent(ev *event.Event) {
	if s.cfg.UserID != "" && ev.UserID != "" && ev.UserID != s.cfg.UserID {
		return
	}
	if s.cfg.NeighborhoodID != "" && ev.NeighborhoodID != "" && ev.NeighborhoodID != s.cfg.NeighborhoodID {
		return
	}
	s.debouncer.Trigger()
}

// Push はバックエンドからの変更通知やクライアントの要求を受けて再取得を予約する。
func (s *Subscriber) Push() {
	s.debouncer.Trigger()
}

// Refresh は即座に再取得する。同時に呼ばれた場合は実行中の1回の結果を共有するが、
// 実行中の取得が始まった後に呼ばれた場合は、その取得の完了後にもう1回取得する。
// Close後は何もしない。
func (s *Subscriber) Refresh(ctx context.Context) error {
	gen := s.requested.Add(1)
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed || s.covered.Load() >= gen {
			return nil
		}

		v, err, _ := s.group.Do("refresh", func() (any, error) {
			if c := s.covered.Load(); c >= gen {
				return c, nil
			}
			start := s.requested.Load()
			s.fetches.Add(1)
			if err := s.fetch(ctx); err != nil {
				return start, err
			}
			for {
				cur := s.covered.Load()
				if cur >= start || s.covered.CompareAndSwap(cur, start) {
					break
				}
			}
			return start, nil
		})
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).WithFields(logging.Fields{
					"user_id":         s.cfg.UserID,
					"neighborhood_id": s.cfg.NeighborhoodID,
				}).Warn("再取得に失敗しました")
			}
			return err
		}
		if v.(uint64) >= gen || ctx.Err() != nil {
			return nil
		}
	}
}

// Fetches はこれまでに実際に実行された取得の回数を返す。
func (s *Subscriber) Fetches() int64 {
	return s.fetches.Load()
}

// Close は購読を解除し、予約済みの再取得とポーリングを止める。
// 戻った時点でポーリングのゴルーチンは終了している。
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	for _, unsub := range unsubscribe {
		unsub()
	}
	s.debouncer.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
