package refresh

import (
	"sync"
	"time"
)

// DefaultDebounce はバスのイベントが続いた場合に再取得を待つ時間。
const DefaultDebounce = 300 * time.Millisecond

// Debouncer は短時間に続いた呼び出しを、最後の呼び出しからdelay後の1回にまとめる。
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer は新しいDebouncerを生成する。delayが0以下の場合はDefaultDebounceを使う。
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger は待ち時間をリセットして実行を予約する。Stop後は何もしない。
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Stop は予約済みの実行を取り消し、以後のTriggerを無視する。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
