package gateio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestBackfillParsesLastRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[["1690000000000","10.0","100.5","101.0","99.0","100.0","1000"]]`))
	}))
	defer srv.Close()
	restBase["spot"] = struct{ host, path string }{srv.URL, "/api/v4/spot/candlesticks"}

	c := New()
	candle, err := c.RestBackfill(context.Background(), srv.Client(), "spot", "BTC_USDT")
	require.NoError(t, err)
	require.True(t, candle.IsClosed)
	require.Equal(t, "BTC_USDT", candle.Symbol)
	require.Equal(t, "100.0", candle.Open)
	require.Equal(t, "100.5", candle.Close)
}

func TestRestBackfillEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	restBase["spot"] = struct{ host, path string }{srv.URL, "/api/v4/spot/candlesticks"}

	c := New()
	_, err := c.RestBackfill(context.Background(), srv.Client(), "spot", "BTC_USDT")
	require.Error(t, err)
}
