// Package queue implements the dual-pipeline queue from spec §4.3: a
// bounded FIFO for closed candles (the backpressure point) and a bounded,
// overwriting LIFO for open candles (freshest-tick-wins). Per spec §9 this
// isn't a standard library primitive; it is built here from a single mutex
// and two condition variables, the way the spec's own design notes suggest.
package queue

import (
	"sync"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// Config configures a Queue. Zero ClosedCapacity falls back to the spec
// default; OpenCapacity of 0 means unbounded (per spec §3.1 — "0 ≡
// unbounded").
type Config struct {
	ClosedCapacity      int           // default 1000
	OpenCapacity        int           // 0 == unbounded
	ProducerBlockTimeout time.Duration // default: large-but-finite wait
}

func (c Config) withDefaults() Config {
	if c.ClosedCapacity == 0 {
		c.ClosedCapacity = 1000
	}
	if c.ProducerBlockTimeout == 0 {
		c.ProducerBlockTimeout = 24 * time.Hour
	}
	return c
}

// Metrics accumulates the observable counters from spec §4.3. All fields
// are read with the Queue's lock held by Snapshot(); callers must not
// mutate a Metrics value directly.
type Metrics struct {
	BlockingEvents uint64
	OpenOverflow   uint64
}

// Queue is one UpstreamSession's QueueState. Safe for concurrent use by
// many producers and many consumers.
type Queue struct {
	cfg Config

	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	closedFIFO []*candle.Candle
	openLIFO   []*candle.Candle
	metrics    Metrics
	closed     bool
}

// New creates a Queue with the given configuration.
func New(cfg Config) *Queue {
	q := &Queue{cfg: cfg.withDefaults()}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Offer enqueues c according to its IsClosed flag (spec §4.3).
//
// Closed candles go to the bounded FIFO; if full, Offer blocks (the
// backpressure point) for up to ProducerBlockTimeout. If the timeout
// expires the candle is dropped and BlockingEvents is incremented —
// never silently: the caller should log a warning using the returned
// bool (false == dropped).
//
// Open candles go to the overwriting LIFO; if full, the oldest element
// (bottom of the stack) is evicted to make room and OpenOverflow is
// incremented.
func (q *Queue) Offer(c *candle.Candle) (delivered bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if c.IsClosed {
		return q.offerClosedLocked(c)
	}
	q.offerOpenLocked(c)
	return true
}

func (q *Queue) offerClosedLocked(c *candle.Candle) bool {
	deadline := time.Now().Add(q.cfg.ProducerBlockTimeout)
	for len(q.closedFIFO) >= q.cfg.ClosedCapacity && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.metrics.BlockingEvents++
			return false
		}
		if !condWaitTimeout(q.notFull, remaining) {
			q.metrics.BlockingEvents++
			return false
		}
	}
	if len(q.closedFIFO) >= q.cfg.ClosedCapacity {
		// Closed while full: Close() documents an immediate false here.
		return false
	}
	q.closedFIFO = append(q.closedFIFO, c)
	q.notEmpty.Signal()
	return true
}

func (q *Queue) offerOpenLocked(c *candle.Candle) {
	if q.cfg.OpenCapacity > 0 && len(q.openLIFO) >= q.cfg.OpenCapacity {
		// Evict the oldest element, which sits at the bottom of the stack
		// (index 0): the stack grows by appending, so the top is the end
		// of the slice.
		copy(q.openLIFO, q.openLIFO[1:])
		q.openLIFO = q.openLIFO[:len(q.openLIFO)-1]
		q.metrics.OpenOverflow++
	}
	q.openLIFO = append(q.openLIFO, c)
	q.notEmpty.Signal()
}

// DrainOne pops the next candle, blocking until one is available or the
// queue is closed. Priority rule: closed FIFO first (chronological
// order), then open LIFO top (freshest tick). Returns ok=false only once
// the queue has been closed and drained.
func (q *Queue) DrainOne() (c *candle.Candle, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.closedFIFO) == 0 && len(q.openLIFO) == 0 {
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}

	if len(q.closedFIFO) > 0 {
		c = q.closedFIFO[0]
		q.closedFIFO = q.closedFIFO[1:]
		q.notFull.Signal()
		return c, true
	}

	n := len(q.openLIFO)
	c = q.openLIFO[n-1]
	q.openLIFO = q.openLIFO[:n-1]
	return c, true
}

// Close marks the queue closed and wakes all blocked producers/consumers.
// After Close, Offer on a full closed FIFO returns immediately (false)
// and DrainOne returns (nil, false) once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// DepthClosed returns the current closed-FIFO depth (queue_depth_closed).
func (q *Queue) DepthClosed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.closedFIFO)
}

// DepthOpen returns the current open-LIFO depth (queue_depth_open).
func (q *Queue) DepthOpen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.openLIFO)
}

// Snapshot returns a copy of the accumulated counters.
func (q *Queue) Snapshot() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics
}

// condWaitTimeout waits on cond for up to d, returning false on timeout.
// sync.Cond has no native timeout, so this spins a helper goroutine that
// re-acquires the lock to issue a wake-up Broadcast after d elapses; the
// caller must hold cond.L on entry and will hold it again on return.
func condWaitTimeout(cond *sync.Cond, d time.Duration) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		close(done)
		cond.L.Unlock()
		cond.Broadcast()
	})
	defer timer.Stop()

	cond.Wait()

	select {
	case <-done:
		return false
	default:
		return true
	}
}
