package bybit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFrameKlineTopic(t *testing.T) {
	c := New()
	raw := []byte(`{"topic":"kline.1.BTCUSDT","type":"snapshot","data":[{"start":1690000000000,"end":1690000059999,"interval":"1","open":"100.0","high":"101.0","low":"99.0","close":"100.5","volume":"10.0","confirm":true}]}`)

	candles, reply, err := c.ParseFrame("linear", raw)
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Len(t, candles, 1)
	require.Equal(t, "BTCUSDT", candles[0].Symbol)
	require.True(t, candles[0].IsClosed)
}

func TestParseFramePongAck(t *testing.T) {
	c := New()
	raw := []byte(`{"op":"pong","success":true}`)
	candles, reply, err := c.ParseFrame("linear", raw)
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Empty(t, candles)
}

func TestParseFrameSubscribeRejected(t *testing.T) {
	c := New()
	raw := []byte(`{"op":"subscribe","success":false,"ret_msg":"invalid topic"}`)
	_, _, err := c.ParseFrame("linear", raw)
	require.Error(t, err)
}

func TestSubscribeMessageBuildsTopicsPerSymbol(t *testing.T) {
	c := New()
	payload, send := c.SubscribeMessage("linear", []string{"BTCUSDT", "ETHUSDT"})
	require.True(t, send)
	require.Contains(t, string(payload), "kline.1.BTCUSDT")
	require.Contains(t, string(payload), "kline.1.ETHUSDT")
}
