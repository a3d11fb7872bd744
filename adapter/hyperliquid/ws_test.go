package hyperliquid

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFrameClosedCandle(t *testing.T) {
	c := New()
	closeMs := time.Now().UTC().Add(-time.Second).UnixMilli()
	raw := []byte(`{"channel":"candle","data":{"t":1690000000000,"T":` + strconv.FormatInt(closeMs, 10) + `,"s":"BTC","i":"1m","o":"100.0","h":"101.0","l":"99.0","c":"100.5","v":"10.0","n":5}}`)

	candles, reply, err := c.ParseFrame("perp", raw)
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Len(t, candles, 1)
	require.Equal(t, "BTC", candles[0].Symbol)
	require.True(t, candles[0].IsClosed)
}

func TestParseFrameOpenCandleFutureCloseTime(t *testing.T) {
	c := New()
	futureCloseMs := time.Now().UTC().Add(time.Minute).UnixMilli()
	raw := []byte(`{"channel":"candle","data":{"t":1690000000000,"T":` + strconv.FormatInt(futureCloseMs, 10) + `,"s":"BTC","i":"1m","o":"100.0","h":"101.0","l":"99.0","c":"100.5","v":"10.0","n":5}}`)

	candles, _, err := c.ParseFrame("perp", raw)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.False(t, candles[0].IsClosed)
}

func TestParseFrameMissingCloseTimeTreatedAsOpen(t *testing.T) {
	c := New()
	raw := []byte(`{"channel":"candle","data":{"t":1690000000000,"s":"BTC","i":"1m","o":"100.0","h":"101.0","l":"99.0","c":"100.5","v":"10.0","n":5}}`)

	candles, _, err := c.ParseFrame("perp", raw)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.False(t, candles[0].IsClosed)
}

func TestParseFrameOtherChannelIgnored(t *testing.T) {
	c := New()
	raw := []byte(`{"channel":"subscriptionResponse","data":{}}`)
	candles, _, err := c.ParseFrame("perp", raw)
	require.NoError(t, err)
	require.Empty(t, candles)
}

func TestSubscribeMessageOneFramePerCoin(t *testing.T) {
	c := New()
	payload, send := c.SubscribeMessage("perp", []string{"BTC", "ETH"})
	require.True(t, send)
	require.Contains(t, string(payload), `"coin":"BTC"`)
	require.Contains(t, string(payload), `"coin":"ETH"`)
	require.Contains(t, string(payload), "\n")
}

