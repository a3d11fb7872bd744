// Package binance implements the adapter.Connector for Binance spot and
// futures kline streams (spec §6.3): combined-stream WebSocket URLs and
// the REST /api/v3/klines (spot) / /fapi/v1/klines (usdm) / /dapi/v1/klines
// (coinm) endpoints.
package binance

import (
	"fmt"

	"github.com/yitech/candlegw/adapter"
)

// Connector is the Binance adapter.Connector implementation.
type Connector struct{}

// New returns a Binance Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Exchange() string { return "binance" }

func (c *Connector) ContractTypes() []string {
	return []string{"spot", "usdm", "coinm"}
}

// SupportsIncrementalSubscribe is true: Binance accepts a {"method":
// "SUBSCRIBE", ...} control frame on a live connection.
func (c *Connector) SupportsIncrementalSubscribe() bool { return true }

var wsBase = map[string]string{
	"spot":  "wss://stream.binance.com:9443/stream",
	"usdm":  "wss://fstream.binance.com/stream",
	"coinm": "wss://dstream.binance.com/stream",
}

func (c *Connector) DialURL(contractType string, symbols []string) (string, error) {
	base, ok := wsBase[contractType]
	if !ok {
		return "", fmt.Errorf("binance: unknown contract_type %q", contractType)
	}
	if len(symbols) == 0 {
		return base + "/stream?streams=", nil
	}
	return base + "?streams=" + streamQuery(symbols), nil
}

// SubscribeMessage is only used for incremental adds; the initial symbol
// set rides in the combined-stream DialURL instead.
func (c *Connector) SubscribeMessage(contractType string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = streamName(s)
	}
	payload := buildSubscribeFrame(streams)
	return payload, true
}

// PingMessage: Binance combined streams accept WebSocket protocol pings;
// no application-level frame is required.
func (c *Connector) PingMessage() ([]byte, bool) { return nil, false }

var _ adapter.Connector = (*Connector)(nil)
