package jobstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type fakeChannel struct {
	mu     sync.Mutex
	target Target
	l      Listener
	closed int
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) emit(event, data string) {
	c.l.OnFrame(Frame{Event: event, Data: []byte(data)})
}

func (c *fakeChannel) drop() {
	c.l.OnTransportError(errors.New("connection reset by peer"))
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	openErr  error
}

func (d *fakeDialer) Open(_ context.Context, t Target, l Listener) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	ch := &fakeChannel{target: t, l: l}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *fakeDialer) openChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, ch := range d.channels {
		if ch.closeCount() == 0 {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only fires timers from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.d)
		}
	}
	return out
}

func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.d)
	}
	return out
}

// recorder captures callback invocations as short strings.
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []ErrorEvent
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(ev ProgressEvent) {
			r.add(fmt.Sprintf("progress:%g", ev.ProgressPercent))
		},
		OnComplete: func(ev CompletionEvent) {
			r.add("complete")
		},
		OnError: func(ev ErrorEvent) {
			r.mu.Lock()
			r.errs = append(r.errs, ev)
			r.mu.Unlock()
			r.add(fmt.Sprintf("error:%s:%t", ev.ErrorType, ev.IsRetryable))
		},
		OnEnd: func(ev EndEvent) {
			r.add("end:" + ev.Reason)
		},
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) errorEvents() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEvent(nil), r.errs...)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeDialer, *fakeClock) {
	t.Helper()
	d := &fakeDialer{}
	clk := newFakeClock()
	base := []Option{
		WithClock(clk),
		WithLogger(log.New(io.Discard)),
		WithReconnectPolicy(ReconnectPolicy{
			BaseDelay:     time.Second,
			MaxAttempts:   5,
			StuckAttempts: 2,
			StuckWindow:   5 * time.Second,
		}),
	}
	return NewManager(d, append(base, opts...)...), d, clk
}
