// Package hyperliquid implements the adapter.Connector for Hyperliquid:
// a single public WebSocket carrying "candle" subscriptions keyed by
// (coin, interval), and the POST candleSnapshot REST endpoint for
// backfill (spec §6.3).
package hyperliquid

import (
	"github.com/yitech/candlegw/adapter"
)

// Connector is the Hyperliquid adapter.Connector implementation.
// Hyperliquid has a single product line, so it accepts one contract_type.
type Connector struct{}

// New returns a Hyperliquid Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Exchange() string { return "hyperliquid" }

func (c *Connector) ContractTypes() []string { return []string{"perp"} }

// SupportsIncrementalSubscribe is true: each symbol subscribes via its
// own independent "subscribe" method call.
func (c *Connector) SupportsIncrementalSubscribe() bool { return true }

const wsEndpoint = "wss://api.hyperliquid.xyz/ws"

func (c *Connector) DialURL(contractType string, symbols []string) (string, error) {
	return wsEndpoint, nil
}

// SubscribeMessage sends one {"method":"subscribe",...} frame per coin;
// Hyperliquid has no combined multi-coin subscribe frame.
func (c *Connector) SubscribeMessage(contractType string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return buildSubscribeFrames(symbols), true
}

// PingMessage: Hyperliquid expects a {"method":"ping"} application frame.
func (c *Connector) PingMessage() ([]byte, bool) {
	return []byte(`{"method":"ping"}`), true
}

var _ adapter.Connector = (*Connector)(nil)
