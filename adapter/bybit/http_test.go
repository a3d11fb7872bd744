package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestBackfillParsesNewestFirstRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[["1690000000000","100.0","101.0","99.0","100.5","10.0","1000"]]}}`))
	}))
	defer srv.Close()
	restBase = srv.URL

	c := New()
	candle, err := c.RestBackfill(context.Background(), srv.Client(), "linear", "BTCUSDT")
	require.NoError(t, err)
	require.True(t, candle.IsClosed)
	require.Equal(t, "BTCUSDT", candle.Symbol)
}

func TestRestBackfillApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"bad request","result":{"list":[]}}`))
	}))
	defer srv.Close()
	restBase = srv.URL

	c := New()
	_, err := c.RestBackfill(context.Background(), srv.Client(), "linear", "BTCUSDT")
	require.Error(t, err)
}
