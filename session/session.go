// Package session implements the per-exchange upstream WebSocket state
// machine from spec §4.5: CONNECTING → SUBSCRIBING → STREAMING ⇄ IDLE →
// BACKFILL, with FAILED/CLOSED terminal-ish states and circuit-breaker
// gated reconnection. Grounded on the reconnect-loop shape of
// coachpo-meltica-gateway's streamManager (dial, resubscribe, ping/read
// goroutines racing to report the first fatal error, backoff-paced
// redial) adapted from github.com/coder/websocket onto this repo's
// gorilla/websocket dependency, and on the teacher's adapter.Connector
// boundary for exchange-specific wire details.
package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yitech/candlegw/adapter"
	"github.com/yitech/candlegw/breaker"
	"github.com/yitech/candlegw/dedup"
	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/metrics"
	"github.com/yitech/candlegw/model/candle"
	"github.com/yitech/candlegw/queue"
	"github.com/yitech/candlegw/restpool"
)

// State is one of the spec §4.5 upstream-session states.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateIdle
	StateBackfill
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateIdle:
		return "idle"
	case StateBackfill:
		return "backfill"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the surface of *websocket.Conn that Session drives. Expressed
// as an interface so tests can substitute a fake transport; *websocket.Conn
// satisfies it without any adapter shim.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a Conn to url. The default dials a real upstream exchange
// with gorilla/websocket; tests inject a fake.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DefaultDialer dials url with gorilla/websocket's package-level dialer.
func DefaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ErrorHandler is invoked whenever the session needs to surface a
// taxonomised error to the subscribers holding a given symbol (spec §7).
// symbol == "" means the error applies to every symbol on this session.
type ErrorHandler func(symbol string, err *errs.Error)

// Config configures timeouts and limits from spec §4.5 / §6.4. Zero
// values fall back to the spec defaults.
type Config struct {
	InactivityTimeout time.Duration // default 3s
	PingInterval      time.Duration // default 20s
	PingTimeout       time.Duration // default 20s
	DialTimeout       time.Duration // default 10s
	SubscribeTimeout  time.Duration // default 5s
	RestTimeout       time.Duration // default 5s

	// ReconnectPollBase/Max pace how often CONNECTING re-asks the circuit
	// breaker for permission while it is denying (OPEN); the breaker
	// itself owns the actual backoff duration (spec §4.1), this only
	// avoids busy-polling Allow().
	ReconnectPollBase time.Duration // default 250ms
	ReconnectPollMax  time.Duration // default 5s
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = 3 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 20 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.RestTimeout == 0 {
		c.RestTimeout = 5 * time.Second
	}
	if c.ReconnectPollBase == 0 {
		c.ReconnectPollBase = 250 * time.Millisecond
	}
	if c.ReconnectPollMax == 0 {
		c.ReconnectPollMax = 5 * time.Second
	}
	return c
}

// Snapshot is a point-in-time view of a Session, used by the readiness
// surface (spec §4.9).
type Snapshot struct {
	Exchange        string
	ContractType    string
	State           State
	LastMessageTime time.Time
	TotalQuotes     uint64
	TotalErrors     uint64
	Breaker         breaker.Snapshot
	Symbols         []string
}

// Session drives one upstream WebSocket to one exchange/contract_type
// pair, per spec §4.5 / §3.1. Safe for concurrent use: Subscribe,
// RemoveSymbol, Snapshot and Close may be called from the session
// manager's goroutine while Run's own goroutine drives the state machine.
type Session struct {
	cfg          Config
	exchange     string
	contractType string
	connector    adapter.Connector
	dial         Dialer
	restPool     *restpool.Pool
	breakerBox   *breaker.Breaker
	queue        *queue.Queue
	dedup        *dedup.Deduplicator
	metrics      *metrics.Registry
	logger       zerolog.Logger
	onError      ErrorHandler

	mu          sync.Mutex
	state       State
	symbols     map[string]struct{}
	conn        Conn
	lastMessage time.Time
	totalQuotes uint64
	totalErrors uint64

	restartCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New builds a Session for (exchange, contractType) with the given
// initial symbol set. restPool, breakerBox, q and dedup are owned by the
// caller (the session manager) and injected here, per spec §9's
// no-singletons rule.
func New(
	exchange, contractType string,
	symbols []string,
	connector adapter.Connector,
	dial Dialer,
	restPool *restpool.Pool,
	breakerBox *breaker.Breaker,
	q *queue.Queue,
	dd *dedup.Deduplicator,
	reg *metrics.Registry,
	logger zerolog.Logger,
	onError ErrorHandler,
	cfg Config,
) *Session {
	if dial == nil {
		dial = DefaultDialer
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return &Session{
		cfg:          cfg.withDefaults(),
		exchange:     exchange,
		contractType: contractType,
		connector:    connector,
		dial:         dial,
		restPool:     restPool,
		breakerBox:   breakerBox,
		queue:        q,
		dedup:        dd,
		metrics:      reg,
		logger:       logger.With().Str("exchange", exchange).Str("contract_type", contractType).Logger(),
		onError:      onError,
		state:        StateInit,
		symbols:      set,
		restartCh:    make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
	}
}

// Queue returns the session's dual-pipeline queue, drained by the session
// manager's fan-out loop.
func (s *Session) Queue() *queue.Queue { return s.queue }

// Exchange returns the session's exchange identifier.
func (s *Session) Exchange() string { return s.exchange }

// ContractType returns the session's contract_type.
func (s *Session) ContractType() string { return s.contractType }

// SymbolCount reports the number of symbols currently assigned.
func (s *Session) SymbolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

// HasSymbol reports whether symbol is already assigned to this session.
func (s *Session) HasSymbol(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.symbols[symbol]
	return ok
}

func (s *Session) symbolList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Subscribe adds symbols to the session's set. If the session is already
// STREAMING and the connector supports incremental subscription, the new
// symbols are added over the live connection; otherwise the session is
// forced to reconnect through SUBSCRIBING with the full, extended set
// (spec §4.7).
func (s *Session) Subscribe(symbols []string) {
	s.mu.Lock()
	added := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := s.symbols[sym]; !ok {
			s.symbols[sym] = struct{}{}
			added = append(added, sym)
		}
	}
	state := s.state
	conn := s.conn
	s.mu.Unlock()

	if len(added) == 0 {
		return
	}

	if state == StateStreaming && s.connector.SupportsIncrementalSubscribe() && conn != nil {
		payload, send := s.connector.SubscribeMessage(s.contractType, added)
		if !send {
			return
		}
		if err := s.writeFrames(conn, payload); err != nil {
			s.logger.Warn().Err(err).Msg("incremental subscribe write failed; forcing reconnect")
			s.requestRestart()
		}
		return
	}
	s.requestRestart()
}

// RemoveSymbol drops symbol from the session's set (spec §4.7
// unsubscribe). The caller is responsible for closing the session once
// its symbol set becomes empty.
func (s *Session) RemoveSymbol(symbol string) {
	s.mu.Lock()
	delete(s.symbols, symbol)
	s.mu.Unlock()
}

func (s *Session) requestRestart() {
	select {
	case s.restartCh <- struct{}{}:
	default:
	}
}

// Close tears the session down: Run returns once the current operation
// unblocks, per spec §4.5 CLOSED.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

// Snapshot returns a point-in-time view for the readiness surface.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	return Snapshot{
		Exchange:        s.exchange,
		ContractType:    s.contractType,
		State:           s.state,
		LastMessageTime: s.lastMessage,
		TotalQuotes:     s.totalQuotes,
		TotalErrors:     s.totalErrors,
		Breaker:         s.breakerBox.Snapshot(),
		Symbols:         symbols,
	}
}

// Healthy reports the spec §4.9 per-session readiness predicate.
func (s *Session) Healthy() bool {
	snap := s.Snapshot()
	if snap.Breaker.State == breaker.Open {
		return false
	}
	if snap.LastMessageTime.IsZero() {
		return false
	}
	return time.Since(snap.LastMessageTime) < 2*s.cfg.InactivityTimeout
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.metrics != nil {
		bs := s.breakerBox.Snapshot()
		s.metrics.SetBreakerState(s.exchange, s.contractType, int(bs.State))
	}
}

// Run drives the state machine until ctx is cancelled or Close is
// called. It returns once CLOSED resources are released.
func (s *Session) Run(ctx context.Context) {
	reconnectBackoff := backoff.NewExponentialBackOff()
	reconnectBackoff.InitialInterval = s.cfg.ReconnectPollBase
	reconnectBackoff.MaxInterval = s.cfg.ReconnectPollMax

	state := StateInit
	for {
		select {
		case <-ctx.Done():
			state = StateClosed
		case <-s.closeCh:
			state = StateClosed
		default:
		}

		s.setState(state)

		switch state {
		case StateInit:
			state = StateConnecting

		case StateConnecting:
			if !s.breakerBox.Allow() {
				wait := reconnectBackoff.NextBackOff()
				select {
				case <-ctx.Done():
					state = StateClosed
				case <-s.closeCh:
					state = StateClosed
				case <-time.After(wait):
				}
				continue
			}
			reconnectBackoff.Reset()

			conn, err := s.connect(ctx)
			if err != nil {
				if s.metrics != nil {
					s.metrics.ObserveConnectionError(s.exchange, classifyConnectError(err))
				}
				s.logger.Warn().Err(err).Msg("connect failed")
				if _, rejected := err.(*errs.Error); !rejected {
					s.notifyAll(errs.New(errs.WSConnectFailed, "dial failed: %v", err).
						WithExchange(s.exchange, s.contractType))
				}
				state = StateFailed
				continue
			}
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			s.breakerBox.RecordSuccess()
			if s.metrics != nil {
				s.metrics.ObserveReconnection(s.exchange)
			}

			// The reader goroutine and its pong channel are tied to this
			// connection's lifetime, not to any single STREAMING visit:
			// a STREAMING→IDLE→STREAMING cycle (inactivity backfill)
			// reuses the same conn and must not spawn a second reader
			// racing the first for the same frames.
			frameCh, pongCh := s.startReader(conn)
			state = StateStreaming

			for state == StateStreaming || state == StateIdle {
				select {
				case <-ctx.Done():
					state = StateClosed
				case <-s.closeCh:
					state = StateClosed
				default:
				}
				s.setState(state)

				if state == StateStreaming {
					next, err := s.runStreaming(ctx, conn, frameCh, pongCh)
					if err != nil {
						s.logger.Warn().Err(err).Msg("stream ended")
					}
					state = next
				} else {
					state = s.runIdle(ctx)
				}
			}

		case StateFailed:
			// Any disconnect reaches FAILED through this case — dial
			// failure, a mid-stream read/ping/pong error, or a restart
			// requested by Subscribe — so the breaker failure is recorded once, here,
			// rather than at each call site (spec §4.5: FAILED always
			// "records failure on circuit breaker").
			s.breakerBox.RecordFailure()
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.Close()
				s.conn = nil
			}
			s.mu.Unlock()
			state = StateConnecting

		case StateClosed:
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.Close()
				s.conn = nil
			}
			s.mu.Unlock()
			s.queue.Close()
			s.setState(StateClosed)
			return

		default:
			state = StateConnecting
		}
	}
}

// startReader spawns the single long-lived reader goroutine for conn. It
// runs until conn is closed (spec §4.5 FAILED/CLOSED) or ReadMessage
// otherwise errors, and is shared across every STREAMING visit for this
// connection — an inactivity-triggered trip through IDLE does not tear
// it down and restart it.
func (s *Session) startReader(conn Conn) (chan frameResult, chan struct{}) {
	frameCh := make(chan frameResult, 8)
	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			mt, data, err := conn.ReadMessage()
			frameCh <- frameResult{mt, data, err}
			if err != nil {
				return
			}
		}
	}()
	return frameCh, pongCh
}

// splitFrames splits a SubscribeMessage payload on "\n" for connectors
// (Hyperliquid) that encode one frame per symbol in a single byte slice.
func splitFrames(payload []byte) [][]byte {
	return bytes.Split(payload, []byte("\n"))
}

func (s *Session) writeFrames(conn Conn, payload []byte) error {
	for _, frame := range splitFrames(payload) {
		if len(frame) == 0 {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// connect performs spec §4.5 CONNECTING + SUBSCRIBING: dial, send the
// subscribe payload (if the connector requires one), then wait for the
// exchange's first response. A ParseFrame error on that first response
// is treated as subscribe rejection (WS_SUBSCRIBE_REJECTED); any valid
// frame (ack or data) completes SUBSCRIBING successfully.
func (s *Session) connect(ctx context.Context) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	symbols := s.symbolList()
	url, err := s.connector.DialURL(s.contractType, symbols)
	if err != nil {
		return nil, fmt.Errorf("session: dial url: %w", err)
	}
	conn, err := s.dial(dctx, url)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}

	if payload, send := s.connector.SubscribeMessage(s.contractType, symbols); send {
		if err := s.writeFrames(conn, payload); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("session: subscribe write: %w", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SubscribeTimeout))
	_, data, err := conn.ReadMessage()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session: await subscribe response: %w", err)
	}

	candles, reply, perr := s.connector.ParseFrame(s.contractType, data)
	if perr != nil {
		_ = conn.Close()
		rejected := errs.New(errs.WSSubscribeRejected, "exchange rejected subscribe for %v", symbols).
			WithExchange(s.exchange, s.contractType, symbols...).
			WithExchangeMessage(perr.Error())
		s.notifyAll(rejected)
		return nil, rejected
	}
	if reply != nil {
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("session: subscribe ack reply: %w", err)
		}
	}
	for _, c := range candles {
		s.ingest(c, time.Now())
	}
	return conn, nil
}

type frameResult struct {
	mt   int
	data []byte
	err  error
}

// runStreaming implements spec §4.5 STREAMING: read frames in order,
// normalise/dedup/enqueue them, keep the connection alive with
// WS_PING_INTERVAL keep-alives, and arm the INACTIVITY_TIMEOUT timer that
// drives the transition to IDLE. Returns the next state and, for
// StateFailed, the error that caused it.
func (s *Session) runStreaming(ctx context.Context, conn Conn, frameCh chan frameResult, pongCh chan struct{}) (State, error) {
	inactivity := time.NewTimer(s.cfg.InactivityTimeout)
	defer inactivity.Stop()
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	pongDeadline := time.NewTimer(s.cfg.PingTimeout)
	pongDeadline.Stop()
	defer pongDeadline.Stop()
	awaitingPong := false

	for {
		select {
		case <-ctx.Done():
			return StateClosed, nil
		case <-s.closeCh:
			return StateClosed, nil
		case <-s.restartCh:
			return StateFailed, nil

		case fr := <-frameCh:
			if fr.err != nil {
				return StateFailed, fmt.Errorf("session: read: %w", fr.err)
			}
			resetTimer(inactivity, s.cfg.InactivityTimeout)
			awaitingPong = false
			s.handleFrame(conn, fr.mt, fr.data)

		case <-pongCh:
			awaitingPong = false

		case <-pingTicker.C:
			if err := s.sendPing(conn); err != nil {
				return StateFailed, fmt.Errorf("session: ping: %w", err)
			}
			awaitingPong = true
			resetTimer(pongDeadline, s.cfg.PingTimeout)

		case <-pongDeadline.C:
			if awaitingPong {
				return StateFailed, fmt.Errorf("session: no pong within %s", s.cfg.PingTimeout)
			}

		case <-inactivity.C:
			// Inactivity itself is the WS_STREAM_TIMEOUT condition (spec
			// §7); runIdle separately raises REST_BACKFILL_FAILED per
			// symbol if the backfill it triggers also fails.
			s.notifyAll(errs.New(errs.WSStreamTimeout, "no frames received within %s", s.cfg.InactivityTimeout).
				WithExchange(s.exchange, s.contractType))
			return StateIdle, nil
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (s *Session) sendPing(conn Conn) error {
	if payload, send := s.connector.PingMessage(); send {
		return conn.WriteMessage(websocket.TextMessage, payload)
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PingTimeout))
}

func (s *Session) handleFrame(conn Conn, _ int, data []byte) {
	receivedAt := time.Now()
	candles, reply, err := s.connector.ParseFrame(s.contractType, data)
	if err != nil {
		// Parse errors are absorbed locally per spec §4.6: logged,
		// counted, frame dropped, never surfaced to subscribers (a bad
		// frame for one symbol must not fate-share with the others on
		// this shared session).
		if s.metrics != nil {
			s.metrics.ObserveConnectionError(s.exchange, "parse_error")
		}
		s.logger.Warn().Err(err).Msg("parse frame failed; dropping")
		return
	}
	if reply != nil {
		if werr := conn.WriteMessage(websocket.TextMessage, reply); werr != nil {
			s.logger.Warn().Err(werr).Msg("failed to write reply frame")
		}
	}
	for _, c := range candles {
		s.ingest(c, receivedAt)
	}
}

// ingest validates, dedups and enqueues one normalised candle, then
// records the observability side effects from spec §4.9.
func (s *Session) ingest(c *candle.Candle, receivedAt time.Time) {
	if err := c.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveConnectionError(s.exchange, "invalid_candle")
		}
		s.logger.Warn().Err(err).Msg("invalid candle dropped")
		return
	}

	if c.IsClosed {
		if s.dedup.CheckAndInsert(candle.DedupKeyOf(c)) == dedup.Duplicate {
			if s.metrics != nil {
				s.metrics.DuplicatesFiltered.Inc()
			}
			return
		}
	}

	if delivered := s.queue.Offer(c); !delivered {
		s.logger.Warn().
			Str("symbol", c.Symbol).
			Bool("is_closed", c.IsClosed).
			Msg("closed queue full past block timeout; candle dropped")
	}

	s.mu.Lock()
	s.lastMessage = time.Now()
	s.totalQuotes++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveQuote(s.exchange, s.contractType, c.IsClosed)
		s.metrics.ObserveQuoteLatency(s.exchange, s.contractType, time.Since(receivedAt).Seconds())
	}
}

// runIdle implements spec §4.5 IDLE + BACKFILL: one REST backfill call
// per symbol, run concurrently (bounded by the REST pool's own
// semaphore), each emitting its candle through the same ingest path as a
// streamed frame. Failures are reported per affected symbol; the session
// always returns to STREAMING without dropping the WebSocket.
func (s *Session) runIdle(ctx context.Context) State {
	symbols := s.symbolList()

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, s.cfg.RestTimeout)
			defer cancel()

			c, err := s.restPool.FetchLatestCandle(rctx, s.contractType, symbol)
			if err != nil {
				if s.metrics != nil {
					s.metrics.ObserveRestBackfill(s.exchange, "failure")
				}
				// A rate-limited wait is its own taxonomy code (spec §7
				// RATE_LIMITED), not a generic backfill failure; everything
				// else collapses into REST_BACKFILL_FAILED.
				if taxErr, ok := errs.As(err); ok && taxErr.Code == errs.RateLimited {
					s.notifyError(symbol, taxErr)
				} else {
					s.notifyError(symbol, errs.New(errs.RESTBackfillFailed, "backfill failed for %s", symbol).
						WithExchange(s.exchange, s.contractType, symbol).
						WithExchangeMessage(err.Error()))
				}
				return
			}
			if s.metrics != nil {
				s.metrics.ObserveRestBackfill(s.exchange, "success")
			}
			s.ingest(c, time.Now())
		}(sym)
	}
	wg.Wait()
	return StateStreaming
}

func (s *Session) notifyError(symbol string, err *errs.Error) {
	s.mu.Lock()
	s.totalErrors++
	s.mu.Unlock()
	if s.onError != nil {
		s.onError(symbol, err)
	}
}

func (s *Session) notifyAll(err *errs.Error) {
	for _, sym := range s.symbolList() {
		s.notifyError(sym, err)
	}
}

// classifyConnectError maps a dial/subscribe error to the spec §4.9
// connection_errors_total{kind} label.
func classifyConnectError(err error) string {
	if _, ok := err.(*errs.Error); ok {
		return string(errs.WSSubscribeRejected)
	}
	return string(errs.WSConnectFailed)
}
