// Package sessionmgr implements the session manager from spec §4.7: it
// maps (exchange, contract_type) to a pool of UpstreamSessions, maps each
// SubscriptionKey to the set of subscribers holding it, and fans forwarded
// candles out to those subscribers. Grounded on the teacher's
// aggregator.Aggregator (per-key state, lazy exchange setup, a single
// process-wide mutex guarding lookups) generalised from in-process fan-out
// of candle.Candle to owning real UpstreamSessions with symbol-capacity
// bounds, plus the ridopark-jonbu-ohlcv Hub's registration/subscription
// map shape for the subscriber side.
package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yitech/candlegw/adapter"
	"github.com/yitech/candlegw/breaker"
	"github.com/yitech/candlegw/dedup"
	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/metrics"
	"github.com/yitech/candlegw/model/candle"
	"github.com/yitech/candlegw/queue"
	"github.com/yitech/candlegw/restpool"
	"github.com/yitech/candlegw/session"
)

// Subscriber is the narrow surface the session manager needs from a
// downstream connection (spec §3.1): a stable identity and a way to
// deliver a normalised candle or a taxonomised error. The subscriber
// package's connection type implements this.
type Subscriber interface {
	ID() string
	Deliver(c *candle.Candle)
	DeliverError(err *errs.Error)
}

// RestPoolFactory builds the process-wide REST pool for one exchange
// (spec §4.4), memoised by Manager so every session of that exchange
// shares one pool.
type RestPoolFactory func(exchange string, connector adapter.Connector) *restpool.Pool

// Config bounds and tunes session creation (spec §4.5/§4.7/§6.4).
type Config struct {
	MaxSymbolPerWS     int // default 50
	MaxConnPerExchange int // 0 == unbounded
	SessionConfig      session.Config
	BreakerConfig      breaker.Config
	QueueConfig        queue.Config
	DedupConfig        dedup.Config

	// Dial overrides the Dialer every created session uses. Nil means
	// session.DefaultDialer (real gorilla/websocket dials); tests inject a
	// fake to avoid real network I/O.
	Dial session.Dialer
}

func (c Config) withDefaults() Config {
	if c.MaxSymbolPerWS == 0 {
		c.MaxSymbolPerWS = 50
	}
	if c.Dial == nil {
		c.Dial = session.DefaultDialer
	}
	return c
}

// sessionEntry pairs a running UpstreamSession with its own cancel func so
// Manager can tear it down independently of the others.
type sessionEntry struct {
	sess   *session.Session
	cancel context.CancelFunc
}

// exchangeGroup holds every session for one (exchange, contract_type) pair;
// MAX_CONN_PER_EXCHANGE is enforced against len(sessions).
type exchangeGroup struct {
	connector adapter.Connector
	restPool  *restpool.Pool
	sessions  []*sessionEntry
}

// Manager is the spec §4.7 Session Manager. A single mutex guards all
// lookups and mutations — contention is low because lookups dominate and
// session creation is rare, per spec §5.
type Manager struct {
	cfg      Config
	registry adapter.Registry
	restPool RestPoolFactory
	reg      *metrics.Registry
	logger   zerolog.Logger

	mu     sync.Mutex
	groups map[groupKey]*exchangeGroup
	subs   map[candle.Key]map[string]Subscriber
	wg     sync.WaitGroup
	closed bool
}

type groupKey struct {
	exchange     string
	contractType string
}

// New builds a Manager over the given connector registry.
func New(registry adapter.Registry, restPool RestPoolFactory, reg *metrics.Registry, logger zerolog.Logger, cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		registry: registry,
		restPool: restPool,
		reg:      reg,
		logger:   logger.With().Str("component", "session_manager").Logger(),
		groups:   make(map[groupKey]*exchangeGroup),
		subs:     make(map[candle.Key]map[string]Subscriber),
	}
}

// SubscribeResult reports which keys were accepted and which were
// rejected, per spec §4.7.
type SubscribeResult struct {
	Subscribed []candle.Key
	Rejected   []RejectedKey
}

// RejectedKey pairs a requested key with the taxonomised reason it could
// not be honoured.
type RejectedKey struct {
	Key candle.Key
	Err *errs.Error
}

// Subscribe implements spec §4.7 subscribe(sub, keys): validates each key,
// places it on an UpstreamSession with spare capacity (creating one if
// permitted), and records sub against that key for forward().
func (m *Manager) Subscribe(ctx context.Context, sub Subscriber, keys []candle.Key) SubscribeResult {
	var result SubscribeResult

	for _, key := range keys {
		if key.Exchange == "" || key.ContractType == "" || key.Symbol == "" {
			result.Rejected = append(result.Rejected, RejectedKey{
				Key: key,
				Err: errs.New(errs.InvalidSymbol, "exchange, contract_type and symbol are all required").
					WithExchange(key.Exchange, key.ContractType, key.Symbol),
			})
			continue
		}
		connector, err := m.registry.Get(key.Exchange)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedKey{
				Key: key,
				Err: errs.New(errs.InvalidSymbol, "unknown exchange %q", key.Exchange).
					WithExchange(key.Exchange, key.ContractType, key.Symbol),
			})
			continue
		}
		if !acceptsContractType(connector, key.ContractType) {
			result.Rejected = append(result.Rejected, RejectedKey{
				Key: key,
				Err: errs.New(errs.InvalidSymbol, "exchange %q does not accept contract_type %q", key.Exchange, key.ContractType).
					WithExchange(key.Exchange, key.ContractType, key.Symbol),
			})
			continue
		}

		if err := m.attach(ctx, connector, key, sub); err != nil {
			if taxErr, ok := errs.As(err); ok {
				result.Rejected = append(result.Rejected, RejectedKey{Key: key, Err: taxErr})
			} else {
				result.Rejected = append(result.Rejected, RejectedKey{
					Key: key,
					Err: errs.New(errs.ConnectionPoolBusy, "%v", err).WithExchange(key.Exchange, key.ContractType, key.Symbol),
				})
			}
			continue
		}
		result.Subscribed = append(result.Subscribed, key)
	}
	return result
}

func acceptsContractType(connector adapter.Connector, contractType string) bool {
	for _, ct := range connector.ContractTypes() {
		if ct == contractType {
			return true
		}
	}
	return false
}

// attach finds or creates a session with capacity for key, records sub
// against key, and pushes the symbol onto the session (incrementally or
// via restart, per session.Subscribe's own rule).
func (m *Manager) attach(ctx context.Context, connector adapter.Connector, key candle.Key, sub Subscriber) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("sessionmgr: manager closed")
	}

	gk := groupKey{exchange: key.Exchange, contractType: key.ContractType}
	group, ok := m.groups[gk]
	if !ok {
		var pool *restpool.Pool
		for k, g := range m.groups {
			if k.exchange == key.Exchange {
				pool = g.restPool
				break
			}
		}
		if pool == nil {
			pool = m.restPool(key.Exchange, connector)
		}
		group = &exchangeGroup{connector: connector, restPool: pool}
		m.groups[gk] = group
	}

	var target *sessionEntry
	for _, entry := range group.sessions {
		if entry.sess.HasSymbol(key.Symbol) {
			target = entry
			break
		}
		if entry.sess.SymbolCount() < m.cfg.MaxSymbolPerWS {
			target = entry
			break
		}
	}

	if target == nil {
		if m.cfg.MaxConnPerExchange > 0 && len(group.sessions) >= m.cfg.MaxConnPerExchange {
			m.mu.Unlock()
			return errs.New(errs.ConnectionPoolBusy, "exchange %q at MAX_CONN_PER_EXCHANGE (%d)", key.Exchange, m.cfg.MaxConnPerExchange).
				WithExchange(key.Exchange, key.ContractType, key.Symbol)
		}
		target = m.startSession(group, key.Exchange, key.ContractType, connector, key.Symbol)
	} else if !target.sess.HasSymbol(key.Symbol) {
		target.sess.Subscribe([]string{key.Symbol})
	}

	subs, ok := m.subs[key]
	if !ok {
		subs = make(map[string]Subscriber)
		m.subs[key] = subs
	}
	subs[sub.ID()] = sub
	m.mu.Unlock()
	return nil
}

// startSession creates, registers and runs a new UpstreamSession for
// group, seeded with symbol. Must be called with m.mu held; it unlocks
// nothing itself (the caller releases m.mu after).
func (m *Manager) startSession(group *exchangeGroup, exchange, contractType string, connector adapter.Connector, symbol string) *sessionEntry {
	breakerBox := breaker.New(m.cfg.BreakerConfig)
	q := queue.New(m.cfg.QueueConfig)
	dd := dedup.New(m.cfg.DedupConfig)

	sctx, cancel := context.WithCancel(context.Background())
	sess := session.New(
		exchange, contractType, []string{symbol},
		connector, m.cfg.Dial, group.restPool,
		breakerBox, q, dd, m.reg,
		m.logger, m.onSessionError, m.cfg.SessionConfig,
	)
	entry := &sessionEntry{sess: sess, cancel: cancel}
	group.sessions = append(group.sessions, entry)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		sess.Run(sctx)
	}()
	go func() {
		defer m.wg.Done()
		m.drain(sess)
	}()

	if m.reg != nil {
		m.reg.SetActiveConnections(exchange, contractType, len(group.sessions))
	}
	return entry
}

// drain pumps candles off one session's queue and forwards them to
// subscribers of that key, per spec §4.7 forward(candle). Returns once the
// session's queue is closed (the session has been torn down).
func (m *Manager) drain(sess *session.Session) {
	for {
		c, ok := sess.Queue().DrainOne()
		if !ok {
			return
		}
		m.forward(c)
		if m.reg != nil {
			m.reg.SetQueueDepth(sess.Exchange(), sess.ContractType(), sess.Queue().DepthClosed(), sess.Queue().DepthOpen())
		}
	}
}

// forward implements spec §4.7 forward(candle): look up subscribers of c's
// SubscriptionKey and deliver a copy to each.
func (m *Manager) forward(c *candle.Candle) {
	key := candle.KeyOf(c)
	m.mu.Lock()
	subs := m.subs[key]
	targets := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		cp := *c
		s.Deliver(&cp)
	}
}

// onSessionError is the session.ErrorHandler passed to every session this
// manager starts: it fans a taxonomised error out to the subscribers of
// the affected symbol (or every subscriber of the session's keys, when
// symbol == "").
func (m *Manager) onSessionError(symbol string, err *errs.Error) {
	m.mu.Lock()
	var targets []Subscriber
	if symbol == "" {
		for key, subs := range m.subs {
			if key.Exchange == err.Exchange && key.ContractType == err.ContractType {
				for _, s := range subs {
					targets = append(targets, s)
				}
			}
		}
	} else {
		key := candle.Key{Exchange: err.Exchange, ContractType: err.ContractType, Symbol: symbol}
		for _, s := range m.subs[key] {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.DeliverError(err)
	}
}

// Unsubscribe implements spec §4.7 unsubscribe(sub, keys): the reverse of
// Subscribe. Once a symbol has no subscribers left it is dropped from its
// session's symbol set; once a session's symbol set is empty the session
// is closed.
func (m *Manager) Unsubscribe(sub Subscriber, keys []candle.Key) {
	for _, key := range keys {
		m.detach(sub, key)
	}
}

func (m *Manager) detach(sub Subscriber, key candle.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.subs[key]
	if !ok {
		return
	}
	delete(subs, sub.ID())
	if len(subs) > 0 {
		return
	}
	delete(m.subs, key)

	gk := groupKey{exchange: key.Exchange, contractType: key.ContractType}
	group, ok := m.groups[gk]
	if !ok {
		return
	}
	for i, entry := range group.sessions {
		if !entry.sess.HasSymbol(key.Symbol) {
			continue
		}
		entry.sess.RemoveSymbol(key.Symbol)
		if entry.sess.SymbolCount() == 0 {
			entry.sess.Close()
			entry.cancel()
			group.sessions = append(group.sessions[:i], group.sessions[i+1:]...)
			if m.reg != nil {
				m.reg.SetActiveConnections(key.Exchange, key.ContractType, len(group.sessions))
			}
		}
		return
	}
}

// UnsubscribeAll removes sub from every key it holds (spec §4.8, on
// downstream disconnect).
func (m *Manager) UnsubscribeAll(sub Subscriber) {
	m.mu.Lock()
	keys := make([]candle.Key, 0)
	for key, subs := range m.subs {
		if _, ok := subs[sub.ID()]; ok {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	m.Unsubscribe(sub, keys)
}

// Snapshot returns a point-in-time readiness view across every session
// (spec §4.9): one entry per session, each carrying its own exchange and
// contract_type.
type Snapshot struct {
	Sessions []session.Snapshot
	Healthy  bool
}

// Snapshot aggregates every session's own Snapshot/Healthy view. Healthy
// is true iff at least one session is healthy (spec §6.2 GET /ready: 200
// if any session is healthy, 503 otherwise).
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	groups := make([]*exchangeGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	out := Snapshot{}
	for _, g := range groups {
		for _, entry := range g.sessions {
			snap := entry.sess.Snapshot()
			out.Sessions = append(out.Sessions, snap)
			if entry.sess.Healthy() {
				out.Healthy = true
			}
		}
	}
	return out
}

// Close tears down every UpstreamSession and waits up to DRAIN_TIMEOUT
// (spec §5) for their goroutines to finish.
func (m *Manager) Close(drainTimeout time.Duration) {
	m.mu.Lock()
	m.closed = true
	var entries []*sessionEntry
	for _, g := range m.groups {
		entries = append(entries, g.sessions...)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.sess.Close()
		entry.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		m.logger.Warn().Msg("drain timeout exceeded; forcing shutdown")
	}
}
