package hyperliquid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestBackfillParsesLastBar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"t":1690000000000,"T":1690000060000,"s":"BTC","i":"1m","o":"100.0","h":"101.0","l":"99.0","c":"100.5","v":"10.0","n":42}]`))
	}))
	defer srv.Close()
	restEndpoint = srv.URL

	c := New()
	candle, err := c.RestBackfill(context.Background(), srv.Client(), "perp", "BTC")
	require.NoError(t, err)
	require.True(t, candle.IsClosed)
	require.Equal(t, "BTC", candle.Symbol)
	require.Equal(t, "100.0", candle.Open)
	require.Equal(t, "100.5", candle.Close)
	require.Equal(t, int64(42), candle.TradeNum)
}

func TestRestBackfillEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	restEndpoint = srv.URL

	c := New()
	_, err := c.RestBackfill(context.Background(), srv.Client(), "perp", "BTC")
	require.Error(t, err)
}
