package hyperliquid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// buildSubscribeFrames builds one {"method":"subscribe",...} frame per
// coin, joined by "\n": Hyperliquid has no combined multi-coin
// subscription, so UpstreamSession splits this payload on newline and
// sends each line as its own text frame.
func buildSubscribeFrames(coins []string) []byte {
	var buf bytes.Buffer
	for i, coin := range coins {
		if i > 0 {
			buf.WriteByte('\n')
		}
		frame := struct {
			Method       string `json:"method"`
			Subscription struct {
				Type     string `json:"type"`
				Coin     string `json:"coin"`
				Interval string `json:"interval"`
			} `json:"subscription"`
		}{Method: "subscribe"}
		frame.Subscription.Type = "candle"
		frame.Subscription.Coin = coin
		frame.Subscription.Interval = "1m"
		b, _ := json.Marshal(frame)
		buf.Write(b)
	}
	return buf.Bytes()
}

// wsMsg is the generic Hyperliquid WebSocket message envelope.
type wsMsg struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// candleData is the payload of a "candle" channel update.
//
// Fields: t (open time ms), T (close time ms, 0 if not yet known), s
// (coin), i (interval), o/h/l/c/v (strings), n (trade count).
type candleData struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Coin      string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
}

func (c *Connector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	var m wsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: decode: %w", err)
	}
	if m.Channel != "candle" || len(m.Data) == 0 {
		return nil, nil, nil // subscriptionResponse, pong, or other channel
	}

	var d candleData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return nil, nil, fmt.Errorf("hyperliquid: decode candle: %w", err)
	}
	if d.OpenTime == 0 {
		return nil, nil, fmt.Errorf("hyperliquid: candle missing open time")
	}

	// Per spec §9's open question: the bar is closed once the wall clock
	// has reached its close time T; a bar without T is treated as open.
	isClosed := d.CloseTime != 0 && time.Now().UTC().UnixMilli() >= d.CloseTime

	out := &candle.Candle{
		Exchange:     "hyperliquid",
		ContractType: contractType,
		Symbol:       d.Coin,
		OpenTime:     time.UnixMilli(d.OpenTime).UTC(),
		Open:         d.Open,
		High:         d.High,
		Low:          d.Low,
		Close:        d.Close,
		Volume:       d.Volume,
		TradeNum:     d.Trades,
		IsClosed:     isClosed,
	}
	return []*candle.Candle{out}, nil, nil
}
