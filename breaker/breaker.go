// Package breaker implements the per-upstream circuit breaker from spec
// §4.1: three states (CLOSED, OPEN, HALF_OPEN), exponential backoff on the
// OPEN→HALF_OPEN transition, and a bounded number of concurrent HALF_OPEN
// trials. Unlike a generic Execute-wrapping breaker (compare
// 1mb-dev-autobreaker), this one is consulted out-of-band: the upstream
// session asks Allow() before dialing, then reports the outcome itself —
// the breaker never calls the guarded operation.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is one of the three breaker states.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker. Zero values fall back to the spec defaults.
type Config struct {
	FailureThreshold uint32        // default 5
	BaseBackoff      time.Duration // default 30s
	MaxBackoff       time.Duration // default 300s
	HalfOpenCalls    uint32        // default 1
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 300 * time.Second
	}
	if c.HalfOpenCalls == 0 {
		c.HalfOpenCalls = 1
	}
	return c
}

// Snapshot is the observable state returned by Snapshot().
type Snapshot struct {
	State               State
	ConsecutiveFailures uint32
	OpenSince           time.Time // zero if not OPEN
}

// Breaker is a single per-upstream circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg Config

	mu    sync.Mutex
	state State

	consecutiveFailures atomic.Uint32
	openCount            uint32 // number of times we have entered OPEN; reset on a full recovery
	openSince            time.Time
	halfOpenInFlight     uint32
}

// New creates a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: Closed}
}

// backoffFor returns d_k = min(BASE * 2^openCount, MAX) for the given
// 0-indexed openCount (the number of times OPEN has already been entered
// before this one).
func (b *Breaker) backoffFor(openCount uint32) time.Duration {
	d := b.cfg.BaseBackoff
	for i := uint32(0); i < openCount; i++ {
		d *= 2
		if d >= b.cfg.MaxBackoff {
			return b.cfg.MaxBackoff
		}
	}
	if d > b.cfg.MaxBackoff {
		d = b.cfg.MaxBackoff
	}
	return d
}

// Allow reports whether an operation may proceed. In CLOSED, always true.
// In OPEN, true only once the backoff has elapsed — and doing so
// transitions the breaker to HALF_OPEN and reserves one trial slot. In
// HALF_OPEN, true only while fewer than HalfOpenCalls trials are in
// flight.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openSince) < b.backoffFor(b.openCount-1) {
			return false
		}
		b.state = HalfOpen
		b.halfOpenInFlight = 1
		return true
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful operation. A success in HALF_OPEN
// transitions to CLOSED and resets openCount; a success in CLOSED resets
// the consecutive-failure streak.
func (b *Breaker) RecordSuccess() {
	b.consecutiveFailures.Store(0)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Closed
		b.openCount = 0
		b.halfOpenInFlight = 0
		b.openSince = time.Time{}
	}
}

// RecordFailure reports a failed operation. In CLOSED, trips to OPEN once
// consecutive failures reach FailureThreshold. In HALF_OPEN, the trial
// failed: openCount is incremented before re-entering OPEN (ties broken
// in favour of re-opening, per spec §4.1).
func (b *Breaker) RecordFailure() {
	failures := b.consecutiveFailures.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if failures >= b.cfg.FailureThreshold {
			b.openCount++
			b.state = Open
			b.openSince = time.Now()
		}
	case HalfOpen:
		b.openCount++
		b.state = Open
		b.openSince = time.Now()
		b.halfOpenInFlight = 0
	}
}

// Snapshot returns a point-in-time view of the breaker's state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures.Load(),
	}
	if b.state == Open {
		s.OpenSince = b.openSince
	}
	return s
}
