package restpool

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yitech/candlegw/errs"
	"github.com/yitech/candlegw/model/candle"
)

func stubFetcher(delay time.Duration, inFlight *atomic.Int32, maxObserved *atomic.Int32) Fetcher {
	return func(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := maxObserved.Load()
			if cur <= old || maxObserved.CompareAndSwap(old, cur) {
				break
			}
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		return &candle.Candle{
			Exchange: "binance", ContractType: contractType, Symbol: symbol,
			OpenTime: time.Unix(0, 0).UTC(),
			Open:     "1", High: "1", Low: "1", Close: "1", Volume: "0",
		}, nil
	}
}

func TestFetchLatestCandleMarksClosed(t *testing.T) {
	var inFlight, maxObserved atomic.Int32
	p := New("binance", Config{}, stubFetcher(0, &inFlight, &maxObserved))
	c, err := p.FetchLatestCandle(context.Background(), "spot", "BTCUSDT")
	require.NoError(t, err)
	require.True(t, c.IsClosed)
}

func TestFetchLatestCandleBoundsConcurrency(t *testing.T) {
	var inFlight, maxObserved atomic.Int32
	p := New("binance", Config{MaxSize: 2}, stubFetcher(20*time.Millisecond, &inFlight, &maxObserved))

	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := p.FetchLatestCandle(context.Background(), "spot", "BTCUSDT")
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	require.LessOrEqual(t, maxObserved.Load(), int32(2))
}

func TestFetchLatestCandleWrapsFetchError(t *testing.T) {
	boom := errors.New("boom")
	p := New("binance", Config{}, func(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
		return nil, boom
	})
	_, err := p.FetchLatestCandle(context.Background(), "spot", "BTCUSDT")
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestFetchLatestCandleRateLimitedWaitReportsRateLimited(t *testing.T) {
	var inFlight, maxObserved atomic.Int32
	p := New("binance", Config{RatePerSec: 1, Burst: 1}, stubFetcher(0, &inFlight, &maxObserved))

	// Drain the single burst token, then ask for another within a deadline
	// too short for the limiter to refill it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := p.FetchLatestCandle(context.Background(), "spot", "BTCUSDT")
	require.NoError(t, err)
	_, err = p.FetchLatestCandle(ctx, "spot", "BTCUSDT")

	require.Error(t, err)
	taxErr, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.RateLimited, taxErr.Code)
}

func TestFetchLatestCandleRespectsContextCancellation(t *testing.T) {
	p := New("binance", Config{MaxSize: 1}, func(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
		time.Sleep(50 * time.Millisecond)
		return &candle.Candle{}, nil
	})

	// Saturate the single slot.
	go func() { _, _ = p.FetchLatestCandle(context.Background(), "spot", "BTCUSDT") }()
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := p.FetchLatestCandle(ctx, "spot", "ETHUSDT")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
