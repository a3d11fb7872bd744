// Package dedup implements the sliding-window deduplicator from spec §4.2:
// it suppresses replayed (symbol, open_time) closed candles — the common
// case after a WebSocket reconnect replays the last few seconds of bars.
package dedup

import (
	"container/list"
	"sync"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// Result is the outcome of a check-and-insert call.
type Result int

const (
	Fresh Result = iota
	Duplicate
)

// Config configures a Deduplicator. Zero values fall back to spec defaults.
type Config struct {
	Window     time.Duration // default 120s
	MaxEntries int           // default 10000
}

func (c Config) withDefaults() Config {
	if c.Window == 0 {
		c.Window = 120 * time.Second
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 10_000
	}
	return c
}

type entry struct {
	key       candle.DedupKey
	insertedAt time.Time
}

// Deduplicator tracks recently seen (symbol, open_time) keys. Safe for
// concurrent use; CheckAndInsert is atomic per key.
type Deduplicator struct {
	cfg Config

	mu      sync.Mutex
	index   map[candle.DedupKey]*list.Element
	order   *list.List // oldest-first, for amortised eviction and overflow
	nowFunc func() time.Time
}

// New creates a Deduplicator with the given configuration.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{
		cfg:     cfg.withDefaults(),
		index:   make(map[candle.DedupKey]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
	}
}

// CheckAndInsert reports whether key is Fresh (never seen, or last seen
// outside the window) or Duplicate (seen within the window). A Fresh key
// is recorded with the current instant. Every call also performs
// amortised eviction of entries older than Window, and — if the map would
// exceed MaxEntries — evicts the oldest entries (insertion order) until
// back under the cap.
func (d *Deduplicator) CheckAndInsert(key candle.DedupKey) Result {
	now := d.nowFunc()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictExpiredLocked(now)

	if el, ok := d.index[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.insertedAt) <= d.cfg.Window {
			return Duplicate
		}
		// Stale entry for a key whose window already lapsed: refresh it.
		d.order.MoveToBack(el)
		e.insertedAt = now
		d.evictOverflowLocked()
		return Fresh
	}

	el := d.order.PushBack(&entry{key: key, insertedAt: now})
	d.index[key] = el
	d.evictOverflowLocked()
	return Fresh
}

// Len reports the number of tracked entries (test/metrics helper).
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *Deduplicator) evictExpiredLocked(now time.Time) {
	for d.order.Len() > 0 {
		front := d.order.Front()
		e := front.Value.(*entry)
		if now.Sub(e.insertedAt) <= d.cfg.Window {
			break
		}
		d.order.Remove(front)
		delete(d.index, e.key)
	}
}

func (d *Deduplicator) evictOverflowLocked() {
	for d.order.Len() > d.cfg.MaxEntries {
		front := d.order.Front()
		e := front.Value.(*entry)
		d.order.Remove(front)
		delete(d.index, e.key)
	}
}
