package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

var restBase = map[string]struct {
	host string
	path string
}{
	"spot":  {"https://api.binance.com", "/api/v3/klines"},
	"usdm":  {"https://fapi.binance.com", "/fapi/v1/klines"},
	"coinm": {"https://dapi.binance.com", "/dapi/v1/klines"},
}

// RestBackfill fetches the single most recent 1-minute kline for symbol,
// implementing the adapter.Connector REST backfill operation.
func (c *Connector) RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
	r, ok := restBase[contractType]
	if !ok {
		return nil, fmt.Errorf("binance: unknown contract_type %q", contractType)
	}

	u, err := url.Parse(r.host + r.path)
	if err != nil {
		return nil, fmt.Errorf("binance: parse url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", "1m")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: unexpected status %s", resp.Status)
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("binance: decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("binance: empty kline response for %s/%s", contractType, symbol)
	}

	return parseRestKline(contractType, symbol, rows[len(rows)-1])
}

// parseRestKline converts one Binance REST kline row into a closed Candle.
//
// Row layout: [0] open time, [1] open, [2] high, [3] low, [4] close,
// [5] volume, [6] close time, [7] quote volume, [8] trade count,
// [9..11] taker-buy fields (unused).
func parseRestKline(contractType, symbol string, row []json.RawMessage) (*candle.Candle, error) {
	if len(row) < 9 {
		return nil, fmt.Errorf("binance: kline row has %d fields, want ≥9", len(row))
	}
	openTime, err := parseInt64(row[0])
	if err != nil {
		return nil, fmt.Errorf("binance: open_time: %w", err)
	}
	tradeNum, err := parseInt64(row[8])
	if err != nil {
		return nil, fmt.Errorf("binance: trade count: %w", err)
	}

	return &candle.Candle{
		Exchange:     "binance",
		ContractType: contractType,
		Symbol:       symbol,
		OpenTime:     time.UnixMilli(openTime).UTC(),
		Open:         jsonString(row[1]),
		High:         jsonString(row[2]),
		Low:          jsonString(row[3]),
		Close:        jsonString(row[4]),
		Volume:       jsonString(row[5]),
		TradeNum:     tradeNum,
		IsClosed:     true,
	}, nil
}

func jsonString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
