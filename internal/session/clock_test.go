package session_test

import (
	"sync"
	"time"

	"github.com/scribeworks/marathon-backend/internal/session"
)

// fakeClock is a manually advanced clock. Advance moves time forward and
// fires any timers or tickers that come due, without sleeping.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), fireAt: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) NewTicker(d time.Duration) session.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock and delivers due timer and ticker fires.
// Channel sends are non-blocking: an actor that already stopped simply
// never drains them.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired && !c.now.Before(t.fireAt) {
			t.fired = true
			select {
			case t.ch <- c.now:
			default:
			}
		}
		t.mu.Unlock()
	}

	for _, t := range c.tickers {
		t.mu.Lock()
		for !t.stopped && !c.now.Before(t.next) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
		t.mu.Unlock()
	}
}

type fakeTimer struct {
	ch     chan time.Time
	fireAt time.Time

	mu      sync.Mutex
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.fired && !t.stopped
	t.stopped = true
	return active
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration

	mu      sync.Mutex
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}
