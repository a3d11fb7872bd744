package gateio

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

var restBase = map[string]struct {
	host string
	path string
}{
	"spot": {"https://api.gateio.ws", "/api/v4/spot/candlesticks"},
	"um":   {"https://api.gateio.ws", "/api/v4/futures/usdt/candlesticks"},
	"cm":   {"https://api.gateio.ws", "/api/v4/futures/btc/candlesticks"},
}

// RestBackfill fetches the single most recent 1-minute candlestick for
// symbol (a currency pair like "BTC_USDT").
func (c *Connector) RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
	r, ok := restBase[contractType]
	if !ok {
		return nil, fmt.Errorf("gateio: unknown contract_type %q", contractType)
	}

	u, err := url.Parse(r.host + r.path)
	if err != nil {
		return nil, fmt.Errorf("gateio: parse url: %w", err)
	}
	q := u.Query()
	q.Set("currency_pair", symbol)
	q.Set("interval", "1m")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gateio: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateio: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateio: unexpected status %s", resp.Status)
	}

	// Spot and futures candlestick rows share the same [t,v,c,h,l,o,...]
	// array shape, differing only in trailing fields we don't need.
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("gateio: decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("gateio: empty candlestick response for %s/%s", contractType, symbol)
	}

	return parseRestCandle(contractType, symbol, rows[len(rows)-1])
}

// parseRestCandle converts one Gate.io candlestick row into a closed
// Candle. Row layout: [0] t (unix seconds), [1] v (volume), [2] c,
// [3] h, [4] l, [5] o, [6] sum (quote volume, unused).
func parseRestCandle(contractType, symbol string, row []json.RawMessage) (*candle.Candle, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("gateio: candlestick row has %d fields, want ≥6", len(row))
	}
	var tStr string
	if err := json.Unmarshal(row[0], &tStr); err != nil {
		return nil, fmt.Errorf("gateio: t: %w", err)
	}
	openSec, err := strconv.ParseInt(tStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gateio: t: %w", err)
	}

	return &candle.Candle{
		Exchange:     "gateio",
		ContractType: contractType,
		Symbol:       symbol,
		OpenTime:     time.Unix(openSec, 0).UTC(),
		Open:         jsonString(row[5]),
		High:         jsonString(row[3]),
		Low:          jsonString(row[4]),
		Close:        jsonString(row[2]),
		Volume:       jsonString(row[1]),
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
