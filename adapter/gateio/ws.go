package gateio

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

func channelFor(contractType string) string {
	if contractType == "spot" {
		return "spot.candlesticks"
	}
	return "futures.candlesticks"
}

// buildSubscribeFrame builds a Gate.io subscribe event, one payload entry
// per symbol: ["1m", "<pair>"].
func buildSubscribeFrame(contractType string, symbols []string) []byte {
	channel := channelFor(contractType)
	payload := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		payload = append(payload, "1m", s)
	}
	frame := struct {
		Time    int64    `json:"time"`
		Channel string   `json:"channel"`
		Event   string   `json:"event"`
		Payload []string `json:"payload"`
	}{Channel: channel, Event: "subscribe", Payload: payload}
	b, _ := json.Marshal(frame)
	return b
}

// wsMsg is the generic Gate.io WebSocket message envelope.
type wsMsg struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *wsError        `json:"error"`
	Result  json.RawMessage `json:"result"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// candleResult is one candlestick update. "n" encodes "<interval>_<pair>"
// (e.g. "1m_BTC_USDT"); the pair is recovered by stripping the interval
// prefix.
type candleResult struct {
	Timestamp string `json:"t"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Name      string `json:"n"`
}

func (c *Connector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	var m wsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("gateio: decode: %w", err)
	}

	if m.Error != nil {
		return nil, nil, fmt.Errorf("gateio: api error %d: %s", m.Error.Code, m.Error.Message)
	}
	if m.Event != "update" || len(m.Result) == 0 {
		return nil, nil, nil // subscribe ack or unrelated event
	}

	// Gate.io sends either a single object or an array of objects under
	// "result" depending on channel; handle both.
	var results []candleResult
	if m.Result[0] == '[' {
		if err := json.Unmarshal(m.Result, &results); err != nil {
			return nil, nil, fmt.Errorf("gateio: decode result array: %w", err)
		}
	} else {
		var single candleResult
		if err := json.Unmarshal(m.Result, &single); err != nil {
			return nil, nil, fmt.Errorf("gateio: decode result: %w", err)
		}
		results = []candleResult{single}
	}

	out := make([]*candle.Candle, 0, len(results))
	for _, r := range results {
		openSec, err := strconv.ParseInt(r.Timestamp, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("gateio: timestamp %q: %w", r.Timestamp, err)
		}
		openTime := time.Unix(openSec, 0).UTC()
		pair := symbolFromName(r.Name)

		out = append(out, &candle.Candle{
			Exchange:     "gateio",
			ContractType: contractType,
			Symbol:       pair,
			OpenTime:     openTime,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Volume:       r.Volume,
			// Gate.io's push stream does not flag closed bars explicitly;
			// a bar is complete once its minute has fully elapsed.
			IsClosed: time.Now().UTC().Sub(openTime) >= time.Minute,
		})
	}
	return out, nil, nil
}

// symbolFromName strips the "<interval>_" prefix from a candlestick name
// like "1m_BTC_USDT", returning "BTC_USDT".
func symbolFromName(name string) string {
	if idx := strings.Index(name, "_"); idx >= 0 && idx < len(name)-1 {
		return name[idx+1:]
	}
	return name
}
