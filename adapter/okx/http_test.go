package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestBackfillParsesFirstRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[["1690000000000","100.0","101.0","99.0","100.5","10.0","1000","1005","1"]]}`))
	}))
	defer srv.Close()
	restBase = srv.URL

	c := New()
	candle, err := c.RestBackfill(context.Background(), srv.Client(), "spot", "BTC-USDT")
	require.NoError(t, err)
	require.True(t, candle.IsClosed)
	require.Equal(t, "BTC-USDT", candle.Symbol)
}

func TestRestBackfillApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50001","msg":"service unavailable","data":[]}`))
	}))
	defer srv.Close()
	restBase = srv.URL

	c := New()
	_, err := c.RestBackfill(context.Background(), srv.Client(), "spot", "BTC-USDT")
	require.Error(t, err)
}
