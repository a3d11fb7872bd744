package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// buildSubscribeFrame builds an OKX {"op":"subscribe","args":[...]} frame
// with one candle1m arg per symbol.
func buildSubscribeFrame(symbols []string) []byte {
	type arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	}
	args := make([]arg, len(symbols))
	for i, s := range symbols {
		args[i] = arg{Channel: "candle1m", InstID: s}
	}
	frame := struct {
		Op   string `json:"op"`
		Args []arg  `json:"args"`
	}{Op: "subscribe", Args: args}
	b, _ := json.Marshal(frame)
	return b
}

// wsMsg is the generic OKX WebSocket message envelope.
type wsMsg struct {
	Event string `json:"event"` // "subscribe", "error"
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

func (c *Connector) ParseFrame(contractType string, raw []byte) ([]*candle.Candle, []byte, error) {
	if string(raw) == "pong" {
		return nil, nil, nil
	}
	if string(raw) == "ping" {
		return nil, []byte("pong"), nil
	}

	var m wsMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("okx: decode: %w", err)
	}

	if m.Event != "" {
		if m.Event == "error" {
			return nil, nil, fmt.Errorf("okx: api error %s: %s", m.Code, m.Msg)
		}
		return nil, nil, nil // subscribe ack
	}
	if m.Arg.Channel != "candle1m" || len(m.Data) == 0 {
		return nil, nil, nil
	}

	out := make([]*candle.Candle, 0, len(m.Data))
	for i, r := range m.Data {
		if len(r) < 6 {
			return nil, nil, fmt.Errorf("okx: candle[%d] has %d fields, want ≥6", i, len(r))
		}
		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("okx: candle[%d] open_time: %w", i, err)
		}
		isClosed := len(r) > 8 && r[8] == "1"

		out = append(out, &candle.Candle{
			Exchange:     "okx",
			ContractType: contractType,
			Symbol:       m.Arg.InstID,
			OpenTime:     time.UnixMilli(openTime).UTC(),
			Open:         r[1],
			High:         r[2],
			Low:          r[3],
			Close:        r[4],
			Volume:       r[5],
			IsClosed:     isClosed,
		})
	}
	return out, nil, nil
}
