package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

const klinePath = "/api/v5/market/candles"

// restBase is a var rather than a const so tests can point it at an
// httptest.Server.
var restBase = "https://www.okx.com"

// RestBackfill fetches the single most recent 1-minute candle for symbol.
func (c *Connector) RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
	u, err := url.Parse(restBase + klinePath)
	if err != nil {
		return nil, fmt.Errorf("okx: parse url: %w", err)
	}
	q := u.Query()
	q.Set("instId", symbol)
	q.Set("bar", "1m")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("okx: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx: unexpected status %s", resp.Status)
	}

	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("okx: decode response: %w", err)
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("okx: api error %s: %s", envelope.Code, envelope.Msg)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("okx: empty candle response for %s/%s", contractType, symbol)
	}

	return parseRestCandle(contractType, symbol, envelope.Data[0])
}

// parseRestCandle converts one OKX candles row into a closed Candle.
//
// Row layout: [0] ts, [1] o, [2] h, [3] l, [4] c, [5] vol, [6] volCcy,
// [7] volCcyQuote, [8] confirm.
func parseRestCandle(contractType, symbol string, r []string) (*candle.Candle, error) {
	if len(r) < 6 {
		return nil, fmt.Errorf("okx: candle row has %d fields, want ≥6", len(r))
	}
	openTime, err := strconv.ParseInt(r[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("okx: open_time: %w", err)
	}

	return &candle.Candle{
		Exchange:     "okx",
		ContractType: contractType,
		Symbol:       symbol,
		OpenTime:     time.UnixMilli(openTime).UTC(),
		Open:         r[1],
		High:         r[2],
		Low:          r[3],
		Close:        r[4],
		Volume:       r[5],
		IsClosed:     true,
	}, nil
}
