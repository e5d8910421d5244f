package chatroom

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// typingDebouncer 輸入中提示：第一次輸入送出 start，最後一次輸入後 delay 才送出 stop
type typingDebouncer struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	delay  time.Duration
	emit   func(typing bool)
	active bool
	timer  clockwork.Timer
	gen    uint64
}

func newTypingDebouncer(clock clockwork.Clock, delay time.Duration, emit func(bool)) *typingDebouncer {
	return &typingDebouncer{clock: clock, delay: delay, emit: emit}
}

func (d *typingDebouncer) keystroke(hasContent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !hasContent {
		d.cancelLocked()
		if d.active {
			d.active = false
			d.emit(false)
		}
		return
	}

	if !d.active {
		d.active = true
		d.emit(true)
	}

	d.cancelLocked()
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire 計時器到期；gen 不同表示已被之後的輸入取代
func (d *typingDebouncer) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen || !d.active {
		return
	}
	d.active = false
	d.timer = nil
	d.emit(false)
}

// flush 取消計時器，若仍在輸入中立即送出 stop
func (d *typingDebouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	if d.active {
		d.active = false
		d.emit(false)
	}
}

func (d *typingDebouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
