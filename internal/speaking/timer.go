package speaking

import (
	"sync"
	"time"
)

// Timer counts down once per second and calls onExpire exactly once when it
// reaches zero, unless it was cancelled first.
type Timer struct {
	duration int
	onTick   func(left int)
	onExpire func()
	ticker   Ticker
	stop     chan struct{}

	mu   sync.Mutex
	left int
	done bool
}

// StartTimer starts a countdown of seconds. A non-positive duration expires
// immediately with zero time left. onTick may be nil.
func StartTimer(clock Clock, seconds int, onTick func(left int), onExpire func()) *Timer {
	if seconds < 0 {
		seconds = 0
	}
	t := &Timer{
		duration: seconds,
		left:     seconds,
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}
	if seconds == 0 {
		go t.fire()
		return t
	}
	t.ticker = clock.NewTicker(time.Second)
	go t.run()
	return t
}

func (t *Timer) run() {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
		}

		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.left--
		left := t.left
		t.mu.Unlock()

		if t.onTick != nil {
			t.onTick(left)
		}
		if left <= 0 {
			t.fire()
			return
		}
	}
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.onExpire()
}

// Cancel stops the countdown. It reports whether the timer was still running;
// after a true result onExpire will never be called.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	close(t.stop)
	return true
}

// State returns the current countdown.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TimerState{Duration: t.duration, TimeLeft: t.left}
}
