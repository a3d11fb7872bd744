// Package bybit implements the adapter.Connector for Bybit v5: one public
// WebSocket per category (spot/linear/inverse) carrying
// kline.1.<SYMBOL> topics, and the /v5/market/kline REST endpoint for
// backfill (spec §6.3).
package bybit

import (
	"fmt"

	"github.com/yitech/candlegw/adapter"
)

// Connector is the Bybit adapter.Connector implementation.
type Connector struct{}

// New returns a Bybit Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Exchange() string { return "bybit" }

func (c *Connector) ContractTypes() []string {
	return []string{"spot", "linear", "inverse"}
}

// SupportsIncrementalSubscribe is true: Bybit's "subscribe" op is additive.
func (c *Connector) SupportsIncrementalSubscribe() bool { return true }

var wsBase = map[string]string{
	"spot":    "wss://stream.bybit.com/v5/public/spot",
	"linear":  "wss://stream.bybit.com/v5/public/linear",
	"inverse": "wss://stream.bybit.com/v5/public/inverse",
}

func (c *Connector) DialURL(contractType string, symbols []string) (string, error) {
	u, ok := wsBase[contractType]
	if !ok {
		return "", fmt.Errorf("bybit: unknown contract_type %q", contractType)
	}
	return u, nil
}

func (c *Connector) SubscribeMessage(contractType string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return buildSubscribeFrame(symbols), true
}

// PingMessage: Bybit disconnects a socket that doesn't see an application
// {"op":"ping"} frame roughly every 20s.
func (c *Connector) PingMessage() ([]byte, bool) {
	return []byte(`{"op":"ping"}`), true
}

var _ adapter.Connector = (*Connector)(nil)
