package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// streamName returns the combined-stream component for symbol, e.g.
// "btcusdt@kline_1m".
func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@kline_1m"
}

// streamQuery joins every symbol's stream name with "/", as required by
// the combined-stream query parameter.
func streamQuery(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = streamName(s)
	}
	return strings.Join(streams, "/")
}

var subscribeID atomic.Int64

// buildSubscribeFrame builds a Binance control frame that adds streams to
// an already-open combined-stream connection.
func buildSubscribeFrame(streams []string) []byte {
	frame := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int64    `json:"id"`
	}{Method: "SUBSCRIBE", Params: streams, ID: subscribeID.Add(1)}
	b, _ := json.Marshal(frame)
	return b
}

// combinedStreamMsg is the envelope Binance wraps every combined-stream
// message in.
type combinedStreamMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	Error  *wsErrorMsg     `json:"error"`
}

// wsErrorMsg is Binance's control-frame rejection envelope, e.g.
// {"error":{"code":2,"msg":"Invalid request"},"id":1}.
type wsErrorMsg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wsKlineMsg is the per-symbol kline event payload under "data".
type wsKlineMsg struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Trades   int64  `json:"n"`
		IsClosed bool   `json:"x"`
	} `json:"k"`
}

func (c *Connector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	var env combinedStreamMsg
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("binance: decode envelope: %w", err)
	}

	// A control-frame ack (subscribe/unsubscribe result) has no "stream".
	// Binance signals a rejected control frame with an "error" object
	// instead of a normal {"result":null,"id":...} ack.
	if env.Stream == "" {
		if env.Error != nil {
			return nil, nil, fmt.Errorf("binance: subscribe rejected (code %d): %s", env.Error.Code, env.Error.Msg)
		}
		return nil, nil, nil
	}

	var m wsKlineMsg
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, nil, fmt.Errorf("binance: decode kline: %w", err)
	}
	if m.EventType != "kline" {
		return nil, nil, nil
	}

	k := m.Kline
	out := &candle.Candle{
		Exchange:     "binance",
		ContractType: contractType,
		Symbol:       m.Symbol,
		OpenTime:     time.UnixMilli(k.OpenTime).UTC(),
		Open:         k.Open,
		High:         k.High,
		Low:          k.Low,
		Close:        k.Close,
		Volume:       k.Volume,
		TradeNum:     k.Trades,
		IsClosed:     k.IsClosed,
	}
	return []*candle.Candle{out}, nil, nil
}

// parseInt64 unmarshals a JSON number, used by http.go's REST decoder.
func parseInt64(raw json.RawMessage) (int64, error) {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}
