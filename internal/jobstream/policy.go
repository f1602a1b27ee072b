package jobstream

import (
	"time"
)

// Default reconnect tuning. None of these are load-bearing; see ReconnectPolicy.
const (
	DefaultBaseDelay     = 1 * time.Second
	DefaultMaxAttempts   = 5
	DefaultStuckAttempts = 2
	DefaultStuckWindow   = 5 * time.Second
)

// ReconnectPolicy bounds how a stream re-establishes its channel.
//
// The delay before reconnect attempt k (1-based) is BaseDelay * 2^(k-1).
// A job that has not produced a progress event within StuckWindow is
// considered stuck and only gets StuckAttempts reconnects; otherwise
// MaxAttempts apply.
type ReconnectPolicy struct {
	BaseDelay     time.Duration
	MaxAttempts   int
	StuckAttempts int
	StuckWindow   time.Duration
}

// DefaultReconnectPolicy returns the stock policy: 1s base, 5 attempts,
// 2 attempts for a job with no progress in the last 5s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:     DefaultBaseDelay,
		MaxAttempts:   DefaultMaxAttempts,
		StuckAttempts: DefaultStuckAttempts,
		StuckWindow:   DefaultStuckWindow,
	}
}

// withDefaults fills zero fields from DefaultReconnectPolicy.
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.StuckAttempts <= 0 {
		p.StuckAttempts = d.StuckAttempts
	}
	if p.StuckAttempts > p.MaxAttempts {
		p.StuckAttempts = p.MaxAttempts
	}
	if p.StuckWindow <= 0 {
		p.StuckWindow = d.StuckWindow
	}
	return p
}

// Delay returns the wait before the given 1-based attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Cap the shift so a misconfigured cap cannot overflow the duration.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return p.BaseDelay << shift
}

// AttemptCap returns how many reconnects are allowed given the time of the
// last progress event. A zero lastProgress means none has been seen.
func (p ReconnectPolicy) AttemptCap(now, lastProgress time.Time) int {
	if lastProgress.IsZero() || now.Sub(lastProgress) > p.StuckWindow {
		return p.StuckAttempts
	}
	return p.MaxAttempts
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so reconnect scheduling can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
