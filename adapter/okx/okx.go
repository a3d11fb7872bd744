// Package okx implements the adapter.Connector for OKX: a single public
// "business" WebSocket carrying a candle1m channel, and the REST
// /api/v5/market/candles endpoint for backfill (spec §6.3).
package okx

import (
	"github.com/yitech/candlegw/adapter"
)

// Connector is the OKX adapter.Connector implementation.
type Connector struct{}

// New returns an OKX Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Exchange() string { return "okx" }

func (c *Connector) ContractTypes() []string {
	return []string{"spot", "swap"}
}

// SupportsIncrementalSubscribe is true: OKX's "subscribe" op is additive.
func (c *Connector) SupportsIncrementalSubscribe() bool { return true }

const wsEndpoint = "wss://ws.okx.com:8443/ws/v5/business"

func (c *Connector) DialURL(contractType string, symbols []string) (string, error) {
	return wsEndpoint, nil
}

func (c *Connector) SubscribeMessage(contractType string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return buildSubscribeFrame(symbols), true
}

// PingMessage: OKX requires a plain-text "ping" frame (not a WS-protocol
// ping) every 20-30s; the server replies with plain-text "pong".
func (c *Connector) PingMessage() ([]byte, bool) { return []byte("ping"), true }

var _ adapter.Connector = (*Connector)(nil)
