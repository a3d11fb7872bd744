// Package subscriber implements the downstream WebSocket multiplexer from
// spec §4.8 / §6.1: one gorilla/websocket server accepting a single
// subscribe frame per connection, fanning normalised candles out through
// a bounded per-connection outbound buffer. Grounded on the
// register/unregister/send-channel shape of marocz-ObsidianStack's ws.Hub
// and ridopark-jonbu-ohlcv's stream.Hub (subscription bookkeeping,
// writePump/readPump split, ping-on-ticker keep-alive), generalised from
// a single broadcast topic to the spec's per-(exchange,contract_type,
// symbol) subscription set and per-client `limit` quote cap.
package subscriber

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/model/candle"
	"github.com/yitech/candlegw/sessionmgr"
)

// OverflowPolicy controls what happens when a Client's outbound buffer is
// full (spec §4.8).
type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop_oldest"
	CloseConn  OverflowPolicy = "close"
)

// Config configures the multiplexer.
type Config struct {
	BufferMax      int // SUBSCRIBER_BUFFER_MAX, default 256
	OverflowPolicy OverflowPolicy
	PingInterval   time.Duration // default 20s
	PongTimeout    time.Duration // default 60s
	WriteTimeout   time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.BufferMax == 0 {
		c.BufferMax = 256
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = DropOldest
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// subscribeRequest is the spec §6.1 client→server frame.
type subscribeRequest struct {
	Exchange     string   `json:"exchange"`
	ContractType string   `json:"contract_type"`
	Symbols      []string `json:"symbols"`
	Limit        int      `json:"limit"`
}

// subscribedFrame, quoteFrame and errorFrame are the spec §6.1 server→
// client frames.
type subscribedFrame struct {
	Type         string   `json:"type"`
	Exchange     string   `json:"exchange"`
	ContractType string   `json:"contract_type"`
	Symbols      []string `json:"symbols"`
	Limit        int      `json:"limit"`
}

type quoteFrame struct {
	Type            string  `json:"type"`
	CurrentTime     string  `json:"current_time"`
	Timestamp       string  `json:"timestamp"`
	Exchange        string  `json:"exchange"`
	Symbol          string  `json:"symbol"`
	ContractType    string  `json:"contract_type"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	TradeNum        int64   `json:"trade_num"`
	IsClosedCandle  bool    `json:"is_closed_candle"`
}

type errorFrame struct {
	Type            string   `json:"type"`
	Code            string   `json:"code"`
	Message         string   `json:"message"`
	Exchange        string   `json:"exchange,omitempty"`
	ContractType    string   `json:"contract_type,omitempty"`
	Symbols         []string `json:"symbols,omitempty"`
	ExchangeMessage string   `json:"exchange_message,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the spec §4.8 subscriber multiplexer: it owns the downstream
// WebSocket listener and forwards accepted subscriptions into a
// sessionmgr.Manager.
type Server struct {
	cfg     Config
	manager *sessionmgr.Manager
	logger  zerolog.Logger

	mu       sync.Mutex
	clients  map[string]*Client
	draining bool
}

// New builds a Server backed by manager.
func New(manager *sessionmgr.Manager, logger zerolog.Logger, cfg Config) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		manager: manager,
		logger:  logger.With().Str("component", "subscriber_server").Logger(),
		clients: make(map[string]*Client),
	}
}

// Router returns a gorilla/mux router with the downstream WS route
// mounted at "/", for use by cmd/gatewayd alongside the HTTP health/metrics
// router (spec §6.1/§6.2 run on different ports by default).
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.ServeHTTP)
	return r
}

// ServeHTTP upgrades the connection and serves one subscriber for its
// lifetime. Blocks until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	draining := s.draining
	s.mu.Unlock()
	if draining {
		http.Error(w, "server draining", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var req subscribeRequest
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(errorFrame{Type: "error", Code: string(errs.InvalidSymbol), Message: "malformed subscribe frame: " + err.Error()})
		_ = conn.Close()
		return
	}

	c := newClient(uuid.NewString(), conn, req.Limit, s.cfg, s.logger)
	s.register(c)
	defer s.unregister(c)

	keys := make([]candle.Key, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		keys = append(keys, candle.Key{Exchange: req.Exchange, ContractType: req.ContractType, Symbol: sym})
	}
	// Subscribe starts the backing UpstreamSession(s) asynchronously, so a
	// quote could in principle be ready before this handler returns. The
	// "subscribed"/rejection frames are written to the socket directly and
	// synchronously, before writePump starts draining the outbound buffer
	// any async Deliver/DeliverError call has queued — guaranteeing they
	// reach the client first, per spec §6.1's frame ordering.
	result := s.manager.Subscribe(r.Context(), c, keys)

	subscribedSymbols := make([]string, 0, len(result.Subscribed))
	for _, k := range result.Subscribed {
		subscribedSymbols = append(subscribedSymbols, k.Symbol)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = conn.WriteJSON(subscribedFrame{
		Type: "subscribed", Exchange: req.Exchange, ContractType: req.ContractType,
		Symbols: subscribedSymbols, Limit: req.Limit,
	})
	for _, rej := range result.Rejected {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.WriteJSON(errorFrame{
			Type: "error", Code: string(rej.Err.Code), Message: rej.Err.Message,
			Exchange: rej.Err.Exchange, ContractType: rej.Err.ContractType,
			Symbols: rej.Err.Symbols, ExchangeMessage: rej.Err.ExchangeMessage,
		})
	}
	_ = conn.SetWriteDeadline(time.Time{})

	go c.writePump()
	c.readPump() // blocks until a read on the connection fails (closed or timed out)

	s.manager.UnsubscribeAll(c)
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c.ID()] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	s.mu.Unlock()
}

// Drain implements the spec §4.8/§5 graceful-drain step for the
// subscriber surface: stop accepting new connections, send a closing
// error to every connected client, and close their connections.
func (s *Server) Drain(ctx context.Context) {
	s.mu.Lock()
	s.draining = true
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if ctx.Err() != nil {
			break
		}
		c.DeliverError(errs.New(errs.InternalQueueBackpressure, "server shutting down"))
		c.Close()
	}
}

// Client is one downstream subscriber connection (spec §3.1 Subscriber).
// It implements sessionmgr.Subscriber.
type Client struct {
	id     string
	conn   *websocket.Conn
	cfg    Config
	logger zerolog.Logger

	limit int // 0 == unbounded

	mu      sync.Mutex
	outbound [][]byte
	sent    int
	closed  bool
	notify  chan struct{}
}

func newClient(id string, conn *websocket.Conn, limit int, cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("client_id", id).Logger(),
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// ID implements sessionmgr.Subscriber.
func (c *Client) ID() string { return c.id }

// Deliver implements sessionmgr.Subscriber: forwards a normalised candle
// as a spec §6.1 quote frame, enforcing the per-connection `limit`.
func (c *Client) Deliver(cd *candle.Candle) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.limit > 0 && c.sent >= c.limit {
		c.mu.Unlock()
		return
	}
	c.sent++
	reachedLimit := c.limit > 0 && c.sent >= c.limit
	c.mu.Unlock()

	now := time.Now().UTC()
	frame := quoteFrame{
		Type:           "quote",
		CurrentTime:    now.Format(time.RFC3339Nano),
		Timestamp:      cd.OpenTime.UTC().Format(time.RFC3339Nano),
		Exchange:       cd.Exchange,
		Symbol:         cd.Symbol,
		ContractType:   cd.ContractType,
		Open:           parseFloatOrZero(cd.Open),
		High:           parseFloatOrZero(cd.High),
		Low:            parseFloatOrZero(cd.Low),
		Close:          parseFloatOrZero(cd.Close),
		Volume:         parseFloatOrZero(cd.Volume),
		TradeNum:       cd.TradeNum,
		IsClosedCandle: cd.IsClosed,
	}
	c.enqueueJSON(frame)

	if reachedLimit {
		c.Close()
	}
}

// DeliverError implements sessionmgr.Subscriber: forwards a taxonomised
// error as a spec §6.1 error frame.
func (c *Client) DeliverError(err *errs.Error) {
	c.enqueueJSON(errorFrame{
		Type: "error", Code: string(err.Code), Message: err.Message,
		Exchange: err.Exchange, ContractType: err.ContractType,
		Symbols: err.Symbols, ExchangeMessage: err.ExchangeMessage,
	})
}

// enqueueJSON marshals v and pushes it onto the outbound buffer, applying
// the configured overflow policy (spec §4.8) when full.
func (c *Client) enqueueJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to marshal outbound frame")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.outbound) >= c.cfg.BufferMax {
		switch c.cfg.OverflowPolicy {
		case CloseConn:
			backpressure, _ := json.Marshal(errorFrame{Type: "error", Code: string(errs.InternalQueueBackpressure), Message: "outbound buffer full"})
			c.outbound = append(c.outbound, backpressure)
			c.closed = true
			c.mu.Unlock()
			select {
			case c.notify <- struct{}{}:
			default:
			}
			return
		default: // DropOldest
			c.outbound = c.outbound[1:]
		}
	}
	c.outbound = append(c.outbound, data)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Close marks the client closed; writePump/readPump observe this and tear
// the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) popAll() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.outbound
	c.outbound = nil
	return out
}

// writePump drains the outbound buffer to the WebSocket connection and
// sends periodic pings. Runs in its own goroutine for the connection's
// lifetime.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		for _, frame := range c.popAll() {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		if c.isClosed() {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		select {
		case <-c.notify:
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads control frames (pong, close) to detect disconnect, per
// spec §4.8 ("subsequent frames are not read for subscription changes").
// Blocks until the connection closes.
func (c *Client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.Close()
			return
		}
	}
}

// parseFloatOrZero renders a Candle's preserved exchange-textual value as
// the float64 the spec §6.1 quote frame wants on the wire.
func parseFloatOrZero(s string) float64 {
	f, err := json.Number(s).Float64()
	if err != nil {
		return 0
	}
	return f
}
