package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlegw/adapter"
	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/model/candle"
	"github.com/yitech/candlegw/restpool"
	"github.com/yitech/candlegw/session"
)

// fakeConn is a minimal session.Conn whose inbound frames are pushed by
// the test and whose outbound writes are discarded.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan fakeFrame
	closed  bool
}

type fakeFrame struct {
	data []byte
	err  error
}

func newFakeConn() *fakeConn { return &fakeConn{inbound: make(chan fakeFrame, 16)} }

func (f *fakeConn) push(data []byte, err error) { f.inbound <- fakeFrame{data: data, err: err} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("fakeConn: closed")
	}
	return 1, fr.data, fr.err
}

func (f *fakeConn) WriteMessage(_ int, _ []byte) error { return nil }
func (f *fakeConn) WriteControl(_ int, _ []byte, _ time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error                 { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)               {}
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

var _ session.Conn = (*fakeConn)(nil)

// fakeConnector is a minimal adapter.Connector accepting contract_type
// "spot" for exchange "fake", whose ParseFrame understands "ack" and
// "candle:<symbol>:<openMs>:<closed>" payloads.
type fakeConnector struct{}

func (c *fakeConnector) Exchange() string                   { return "fake" }
func (c *fakeConnector) ContractTypes() []string             { return []string{"spot"} }
func (c *fakeConnector) SupportsIncrementalSubscribe() bool  { return true }
func (c *fakeConnector) DialURL(_ string, _ []string) (string, error) {
	return "wss://fake.test/ws", nil
}
func (c *fakeConnector) SubscribeMessage(_ string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return []byte("subscribe"), true
}
func (c *fakeConnector) PingMessage() ([]byte, bool) { return nil, false }

func (c *fakeConnector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	s := string(raw)
	if s == "ack" {
		return nil, nil, nil
	}
	if s == "reject" {
		return nil, nil, fmt.Errorf("fake: rejected")
	}
	if len(s) > 7 && s[:7] == "candle:" {
		parts := strings.SplitN(s, ":", 4)
		if len(parts) != 4 {
			return nil, nil, fmt.Errorf("fake: malformed candle frame %q", s)
		}
		symbol := parts[1]
		var openMs int64
		var closed int
		if _, err := fmt.Sscanf(parts[2], "%d", &openMs); err != nil {
			return nil, nil, err
		}
		if _, err := fmt.Sscanf(parts[3], "%d", &closed); err != nil {
			return nil, nil, err
		}
		return []*candle.Candle{{
			Exchange: "fake", ContractType: contractType, Symbol: symbol,
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     "1", High: "1", Low: "1", Close: "1", Volume: "0",
			IsClosed: closed == 1,
		}}, nil, nil
	}
	return nil, nil, nil
}

func (c *fakeConnector) RestBackfill(_ context.Context, _ *http.Client, contractType, symbol string) (*candle.Candle, error) {
	return &candle.Candle{
		Exchange: "fake", ContractType: contractType, Symbol: symbol,
		OpenTime: time.Unix(0, 0).UTC(),
		Open:     "1", High: "1", Low: "1", Close: "1", Volume: "0",
		IsClosed: true,
	}, nil
}

var _ adapter.Connector = (*fakeConnector)(nil)

// fakeSubscriber records delivered candles and errors.
type fakeSubscriber struct {
	id string

	mu      sync.Mutex
	candles []*candle.Candle
	errs    []*errs.Error
}

func newFakeSubscriber(id string) *fakeSubscriber { return &fakeSubscriber{id: id} }

func (s *fakeSubscriber) ID() string { return s.id }
func (s *fakeSubscriber) Deliver(c *candle.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, c)
}
func (s *fakeSubscriber) DeliverError(err *errs.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}
func (s *fakeSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candles)
}
func (s *fakeSubscriber) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

var _ Subscriber = (*fakeSubscriber)(nil)

func newTestManager(t *testing.T, dial session.Dialer, cfg Config) *Manager {
	t.Helper()
	registry := adapter.Registry{"fake": &fakeConnector{}}
	restPoolFactory := func(exchange string, connector adapter.Connector) *restpool.Pool {
		return restpool.New(exchange, restpool.Config{}, func(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
			return connector.RestBackfill(ctx, client, contractType, symbol)
		})
	}
	cfg.SessionConfig = session.Config{
		InactivityTimeout: time.Hour,
		PingInterval:      time.Hour,
		PingTimeout:       time.Hour,
		SubscribeTimeout:  time.Second,
	}
	if dial != nil {
		cfg.Dial = dial
	} else {
		cfg.Dial = func(ctx context.Context, url string) (session.Conn, error) {
			c := newFakeConn()
			// The first frame itself completes SUBSCRIBING (no separate
			// ack) and is ingested immediately, giving Subscribe tests an
			// observable delivered candle without a second round trip.
			c.push([]byte("candle:BTCUSDT:60000:1"), nil)
			return c, nil
		}
	}
	return New(registry, restPoolFactory, nil, zerolog.Nop(), cfg)
}

func TestSubscribeCreatesSessionAndForwards(t *testing.T) {
	m := newTestManager(t, nil, Config{MaxSymbolPerWS: 50})
	sub := newFakeSubscriber("sub-1")
	result := m.Subscribe(context.Background(), sub, []candle.Key{
		{Exchange: "fake", ContractType: "spot", Symbol: "BTCUSDT"},
	})
	require.Len(t, result.Subscribed, 1)
	require.Empty(t, result.Rejected)

	m.mu.Lock()
	_, ok := m.subs[candle.Key{Exchange: "fake", ContractType: "spot", Symbol: "BTCUSDT"}]
	m.mu.Unlock()
	require.True(t, ok)

	require.Eventually(t, func() bool { return sub.count() > 0 }, time.Second, time.Millisecond)

	m.Close(time.Second)
}

func TestSubscribeRejectsUnknownExchange(t *testing.T) {
	m := newTestManager(t, nil, Config{MaxSymbolPerWS: 50})
	sub := newFakeSubscriber("sub-1")
	result := m.Subscribe(context.Background(), sub, []candle.Key{
		{Exchange: "unknown", ContractType: "spot", Symbol: "BTCUSDT"},
	})
	require.Empty(t, result.Subscribed)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, errs.InvalidSymbol, result.Rejected[0].Err.Code)
	m.Close(time.Second)
}

func TestSubscribeRejectsInvalidKey(t *testing.T) {
	m := newTestManager(t, nil, Config{MaxSymbolPerWS: 50})
	sub := newFakeSubscriber("sub-1")
	result := m.Subscribe(context.Background(), sub, []candle.Key{
		{Exchange: "fake", ContractType: "spot", Symbol: ""},
	})
	require.Empty(t, result.Subscribed)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, errs.InvalidSymbol, result.Rejected[0].Err.Code)
	m.Close(time.Second)
}

func TestSubscribeRejectsUnsupportedContractType(t *testing.T) {
	m := newTestManager(t, nil, Config{MaxSymbolPerWS: 50})
	sub := newFakeSubscriber("sub-1")
	result := m.Subscribe(context.Background(), sub, []candle.Key{
		{Exchange: "fake", ContractType: "linear", Symbol: "BTCUSDT"},
	})
	require.Empty(t, result.Subscribed)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, errs.InvalidSymbol, result.Rejected[0].Err.Code)
	m.Close(time.Second)
}

func TestUnsubscribeAllRemovesEveryKey(t *testing.T) {
	m := newTestManager(t, nil, Config{MaxSymbolPerWS: 50})
	sub := newFakeSubscriber("sub-1")
	m.Subscribe(context.Background(), sub, []candle.Key{
		{Exchange: "fake", ContractType: "spot", Symbol: "BTCUSDT"},
		{Exchange: "fake", ContractType: "spot", Symbol: "ETHUSDT"},
	})

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.subs) == 2
	}, time.Second, time.Millisecond)

	m.UnsubscribeAll(sub)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.subs) == 0
	}, time.Second, time.Millisecond)

	m.Close(time.Second)
}
