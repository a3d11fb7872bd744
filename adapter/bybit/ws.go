package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// buildSubscribeFrame builds a Bybit {"op":"subscribe","args":[...]} frame
// with one kline.1.<SYMBOL> topic per symbol.
func buildSubscribeFrame(symbols []string) []byte {
	topics := make([]string, len(symbols))
	for i, s := range symbols {
		topics[i] = fmt.Sprintf("kline.1.%s", s)
	}
	frame := struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}{Op: "subscribe", Args: topics}
	b, _ := json.Marshal(frame)
	return b
}

// wsMsg is the generic Bybit V5 WebSocket message envelope.
type wsMsg struct {
	Op      string          `json:"op"`      // "pong", "subscribe"
	Success bool            `json:"success"` // subscription/pong ack
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"` // "kline.1.BTCUSDT"
	Data    json.RawMessage `json:"data"`
}

// klineEntry is one kline object inside the data array.
type klineEntry struct {
	Start   int64  `json:"start"` // open time (ms)
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"` // true = candle is closed
}

func (c *Connector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	var m wsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("bybit: decode: %w", err)
	}

	if m.Op != "" {
		if m.Op == "subscribe" && !m.Success {
			return nil, nil, fmt.Errorf("bybit: subscribe rejected: %s", m.RetMsg)
		}
		return nil, nil, nil // pong or subscribe ack
	}
	if m.Topic == "" || len(m.Data) == 0 {
		return nil, nil, nil
	}

	symbol := symbolFromTopic(m.Topic)

	var entries []klineEntry
	if err := json.Unmarshal(m.Data, &entries); err != nil {
		return nil, nil, fmt.Errorf("bybit: decode data: %w", err)
	}

	out := make([]*candle.Candle, 0, len(entries))
	for _, e := range entries {
		out = append(out, &candle.Candle{
			Exchange:     "bybit",
			ContractType: contractType,
			Symbol:       symbol,
			OpenTime:     time.UnixMilli(e.Start).UTC(),
			Open:         e.Open,
			High:         e.High,
			Low:          e.Low,
			Close:        e.Close,
			Volume:       e.Volume,
			IsClosed:     e.Confirm,
		})
	}
	return out, nil, nil
}

// symbolFromTopic extracts SYMBOL from a "kline.1.SYMBOL" topic string.
func symbolFromTopic(topic string) string {
	const prefix = "kline.1."
	if len(topic) > len(prefix) {
		return topic[len(prefix):]
	}
	return topic
}
