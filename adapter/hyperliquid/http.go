package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yitech/candlegw/model/candle"
)

// restEndpoint is a var rather than a const so tests can point it at an
// httptest.Server.
var restEndpoint = "https://api.hyperliquid.xyz/info"

type snapshotRequest struct {
	Type string `json:"type"`
	Req  struct {
		Coin      string `json:"coin"`
		Interval  string `json:"interval"`
		StartTime int64  `json:"startTime"`
		EndTime   int64  `json:"endTime"`
	} `json:"req"`
}

type snapshotBar struct {
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

// RestBackfill fetches the most recent 1-minute bar for coin via POST
// /info {"type":"candleSnapshot",...}: the last bar of a ten-minute window
// ending now. The bar's close time is not checked; it is returned with
// IsClosed=true.
func (c *Connector) RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error) {
	now := time.Now().UTC()
	req := snapshotRequest{Type: "candleSnapshot"}
	req.Req.Coin = symbol
	req.Req.Interval = "1m"
	req.Req.EndTime = now.UnixMilli()
	req.Req.StartTime = now.Add(-10 * time.Minute).UnixMilli()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, restEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hyperliquid: unexpected status %s", resp.Status)
	}

	var bars []snapshotBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode response: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("hyperliquid: empty candleSnapshot for %s/%s", contractType, symbol)
	}

	b := bars[len(bars)-1]
	return &candle.Candle{
		Exchange:     "hyperliquid",
		ContractType: contractType,
		Symbol:       b.Coin,
		OpenTime:     time.UnixMilli(b.OpenTime).UTC(),
		Open:         b.Open,
		High:         b.High,
		Low:          b.Low,
		Close:        b.Close,
		Volume:       b.Volume,
		TradeNum:     b.Trades,
		IsClosed:     true,
	}, nil
}
