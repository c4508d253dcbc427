package refresh

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nao1215/neighborly/pkg/event"
	"github.com/nao1215/neighborly/pkg/logging"
	"github.com/nao1215/neighborly/pkg/metrics"
)

// Handler はバスに届いたイベントを受け取る。発行元のゴルーチンで同期的に呼ばれるため、ブロックしてはならない。
type Handler func(*event.Event)

// Emitter はイベントを発行できるもの。通知や取り込みの処理はこのインターフェースに依存する。
type Emitter interface {
	Publish(ev *event.Event)
}

// Bus はプロセス内のリフレッシュイベントの配送先を管理する。
type Bus struct {
	mu       sync.RWMutex
	handlers map[event.Type]map[uint64]Handler
	any      map[uint64]Handler
	nextID   uint64

	origin  string
	logger  logging.Logger
	metrics *metrics.Collector
}

// BusOption はBusの設定を変更する関数。
type BusOption func(*Bus)

// WithMetrics は発行したイベント数を記録するコレクタを設定する。
func WithMetrics(c *metrics.Collector) BusOption {
	return func(b *Bus) { b.metrics = c }
}

// NewBus は新しいBusを生成する。プロセスを識別するOriginが割り当てられる。
func NewBus(logger logging.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[event.Type]map[uint64]Handler),
		any:      make(map[uint64]Handler),
		origin:   uuid.New().String(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin はこのバスが発行するイベントに付けるプロセス識別子を返す。
func (b *Bus) Origin() string {
	return b.origin
}

// On は指定した種類のイベントのハンドラを登録し、登録を解除する関数を返す。
// 解除関数は何度呼んでもよい。
func (b *Bus) On(t event.Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[uint64]Handler)
	}
	b.handlers[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[t], id)
		if len(b.handlers[t]) == 0 {
			delete(b.handlers, t)
		}
	}
}

// OnAny は全種類のイベントを受け取るハンドラを登録し、登録を解除する関数を返す。
func (b *Bus) OnAny(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.any[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.any, id)
	}
}

// Subscribers は指定した種類のイベントを受け取るハンドラの数を返す。OnAnyのハンドラも含む。
func (b *Bus) Subscribers(t event.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) + len(b.any)
}

// Emit はデータを持たないイベントを発行する。
func (b *Bus) Emit(t event.Type) {
	ev, err := event.New(t, nil)
	if err != nil {
		b.logger.WithError(err).WithField("event_type", t).Error("イベントの生成に失敗しました")
		return
	}
	b.Publish(ev)
}

// Publish はイベントを登録済みのハンドラに配送する。
// Originが空の場合はこのバスのOriginを設定する。ハンドラのパニックは記録して他のハンドラへの配送を続ける。
func (b *Bus) Publish(ev *event.Event) {
	if ev == nil {
		return
	}
	if ev.Origin == "" {
		ev.Origin = b.origin
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[ev.Type])+len(b.any))
	for _, h := range b.handlers[ev.Type] {
		targets = append(targets, h)
	}
	for _, h := range b.any {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	b.metrics.RefreshEvent(string(ev.Type))
	b.logger.WithFields(logging.Fields{
		"event_type":  ev.Type,
		"user_id":     ev.UserID,
		"subscribers": len(targets),
	}).Debug("リフレッシュイベントを発行しました")

	for _, h := range targets {
		b.dispatch(h, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logging.Fields{
				"event_type": ev.Type,
				"panic":      r,
			}).Error("リフレッシュイベントのハンドラでパニックが発生しました")
		}
	}()
	h(ev)
}
