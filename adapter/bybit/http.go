package bybit

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

const klinePath = "/v5/market/kline"

// restBase is a var rather than a const so tests can point it at an
// httptest.Server.
var restBase = "https://api.bybit.com"

// RestBackfill fetches the single most recent 1-minute kline for symbol.
func (c *Connector) RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
	u, err := url.Parse(restBase + klinePath)
	if err != nil {
		return nil, fmt.Errorf("bybit: parse url: %w", err)
	}
	q := u.Query()
	q.Set("category", contractType)
	q.Set("symbol", symbol)
	q.Set("interval", "1")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bybit: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit: unexpected status %s", resp.Status)
	}

	var envelope struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("bybit: decode response: %w", err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("bybit: api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	if len(envelope.Result.List) == 0 {
		return nil, fmt.Errorf("bybit: empty kline response for %s/%s", contractType, symbol)
	}

	// Bybit returns newest-first; [0] is the most recent bar.
	return parseRestKline(contractType, symbol, envelope.Result.List[0])
}

// parseRestKline converts one Bybit kline row into a closed Candle.
//
// Row layout: [0] start, [1] open, [2] high, [3] low, [4] close,
// [5] volume, [6] turnover (unused).
func parseRestKline(contractType, symbol string, r []string) (*candle.Candle, error) {
	if len(r) < 6 {
		return nil, fmt.Errorf("bybit: kline row has %d fields, want ≥6", len(r))
	}
	openTime, err := strconv.ParseInt(r[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bybit: start: %w", err)
	}

	return &candle.Candle{
		Exchange:     "bybit",
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
