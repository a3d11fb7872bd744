package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yitech/candlegw/adapter"
	"github.com/yitech/candlegw/breaker"
	"github.com/yitech/candlegw/dedup"
	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/model/candle"
	"github.com/yitech/candlegw/queue"
	"github.com/yitech/candlegw/restpool"
)

// fakeConn is an in-memory Conn for deterministic state-machine tests.
type fakeConn struct {
	mu       sync.Mutex
	inbound  chan frameResult
	written  [][]byte
	closed   bool
	pongHook func(string) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan frameResult, 16)}
}

func (f *fakeConn) push(data []byte, err error) {
	f.inbound <- frameResult{mt: 1, data: data, err: err}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("fakeConn: closed")
	}
	return fr.mt, fr.data, fr.err
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) WriteControl(_ int, _ []byte, _ time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error                 { return nil }
func (f *fakeConn) SetPongHandler(h func(string) error)             { f.pongHook = h }
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

// fakeConnector is a minimal adapter.Connector whose ParseFrame decodes a
// trivially tagged test payload: "candle:<symbol>:<openTimeMs>:<closed>",
// "ack", or "reject".
type fakeConnector struct {
	incremental bool
}

func (c *fakeConnector) Exchange() string          { return "fake" }
func (c *fakeConnector) ContractTypes() []string    { return []string{"spot"} }
func (c *fakeConnector) SupportsIncrementalSubscribe() bool { return c.incremental }

func (c *fakeConnector) DialURL(_ string, _ []string) (string, error) {
	return "wss://fake.test/ws", nil
}

func (c *fakeConnector) SubscribeMessage(_ string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return []byte("subscribe"), true
}

func (c *fakeConnector) PingMessage() ([]byte, bool) { return []byte("ping"), true }

func (c *fakeConnector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	s := string(raw)
	switch {
	case s == "ack":
		return nil, nil, nil
	case s == "reject":
		return nil, nil, fmt.Errorf("fake: rejected")
	case s == "pong":
		return nil, nil, nil
	case len(s) > 7 && s[:7] == "candle:":
		parts := splitN(s, ':', 4)
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
	default:
		return nil, nil, nil
	}
}

func splitN(s string, sep byte, n int) []string {
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
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

func newTestSession(t *testing.T, dialFn Dialer, onError ErrorHandler) *Session {
	t.Helper()
	rp := restpool.New("fake", restpool.Config{}, func(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
		return (&fakeConnector{}).RestBackfill(ctx, client, contractType, symbol)
	})
	return New(
		"fake", "spot", []string{"BTCUSDT"},
		&fakeConnector{incremental: true},
		dialFn,
		rp,
		breaker.New(breaker.Config{}),
		queue.New(queue.Config{}),
		dedup.New(dedup.Config{}),
		nil,
		zerolog.Nop(),
		onError,
		Config{InactivityTimeout: 80 * time.Millisecond, PingInterval: time.Hour, PingTimeout: time.Hour, SubscribeTimeout: time.Second},
	)
}

func TestConnectAckThenStreamIngestsCandle(t *testing.T) {
	conn := newFakeConn()
	conn.push([]byte("ack"), nil)

	dialCount := atomic.Int32{}
	dial := func(ctx context.Context, url string) (Conn, error) {
		dialCount.Add(1)
		return conn, nil
	}

	s := newTestSession(t, dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	// Wait for SUBSCRIBING to complete.
	require.Eventually(t, func() bool {
		return s.Snapshot().State == StateStreaming
	}, time.Second, time.Millisecond)

	conn.push([]byte("candle:BTCUSDT:60000:1"), nil)

	c, ok := s.Queue().DrainOne()
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", c.Symbol)
	require.True(t, c.IsClosed)

	require.Equal(t, int32(1), dialCount.Load())
	s.Close()
	<-done
}

func TestConnectRejectionReportsError(t *testing.T) {
	conn := newFakeConn()
	conn.push([]byte("reject"), nil)

	dial := func(ctx context.Context, url string) (Conn, error) { return conn, nil }

	var mu sync.Mutex
	var gotCode errs.Code
	onError := func(symbol string, err *errs.Error) {
		mu.Lock()
		defer mu.Unlock()
		gotCode = err.Code
	}

	s := newTestSession(t, dial, onError)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotCode == errs.WSSubscribeRejected
	}, time.Second, time.Millisecond)

	s.Close()
}

func TestInactivityTriggersBackfill(t *testing.T) {
	conn := newFakeConn()
	conn.push([]byte("ack"), nil)
	dial := func(ctx context.Context, url string) (Conn, error) { return conn, nil }

	s := newTestSession(t, dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// InactivityTimeout is 80ms; no further frames are pushed, so the
	// session should transition to IDLE, backfill, and deliver a closed
	// candle without any more WS traffic.
	c, ok := s.Queue().DrainOne()
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", c.Symbol)
	require.True(t, c.IsClosed)

	s.Close()
}

func TestReadErrorReconnects(t *testing.T) {
	firstConn := newFakeConn()
	firstConn.push([]byte("ack"), nil)
	secondConn := newFakeConn()
	secondConn.push([]byte("ack"), nil)

	var calls atomic.Int32
	dial := func(ctx context.Context, url string) (Conn, error) {
		if calls.Add(1) == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}

	s := newTestSession(t, dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.Snapshot().State == StateStreaming }, time.Second, time.Millisecond)
	firstConn.push(nil, errors.New("connection reset"))

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	s.Close()
}

func TestReadErrorRecordsBreakerFailure(t *testing.T) {
	firstConn := newFakeConn()
	firstConn.push([]byte("ack"), nil)
	secondConn := newFakeConn()
	secondConn.push([]byte("ack"), nil)

	var calls atomic.Int32
	dial := func(ctx context.Context, url string) (Conn, error) {
		if calls.Add(1) == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}

	s := newTestSession(t, dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.Snapshot().State == StateStreaming }, time.Second, time.Millisecond)
	firstConn.push(nil, errors.New("connection reset"))

	// A disconnect mid-stream must still count against the breaker (spec
	// §4.5: FAILED always records a failure), even though the dial itself
	// succeeded.
	require.Eventually(t, func() bool {
		return s.Snapshot().Breaker.ConsecutiveFailures >= 1
	}, time.Second, time.Millisecond)

	s.Close()
}

func TestInactivityNotifiesStreamTimeout(t *testing.T) {
	conn := newFakeConn()
	conn.push([]byte("ack"), nil)
	dial := func(ctx context.Context, url string) (Conn, error) { return conn, nil }

	var mu sync.Mutex
	var codes []errs.Code
	onError := func(symbol string, err *errs.Error) {
		mu.Lock()
		defer mu.Unlock()
		codes = append(codes, err.Code)
	}

	s := newTestSession(t, dial, onError)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// InactivityTimeout fires with no further frames; the session should
	// report WS_STREAM_TIMEOUT for the inactivity itself, distinct from
	// any REST_BACKFILL_FAILED the backfill attempt might separately raise.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range codes {
			if c == errs.WSStreamTimeout {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	s.Close()
}

func TestSubscribeIncrementalSendsOverLiveConn(t *testing.T) {
	conn := newFakeConn()
	conn.push([]byte("ack"), nil)
	dial := func(ctx context.Context, url string) (Conn, error) { return conn, nil }

	s := newTestSession(t, dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.Snapshot().State == StateStreaming }, time.Second, time.Millisecond)

	s.Subscribe([]string{"ETHUSDT"})
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.written) > 0
	}, time.Second, time.Millisecond)
	require.True(t, s.HasSymbol("ETHUSDT"))

	s.Close()
}
