// Package gateio implements the adapter.Connector for Gate.io: the
// spot.candlesticks / futures.candlesticks channels, with separate WS
// hosts per settlement currency for coin-margined futures, and the
// matching REST candlestick endpoints for backfill (spec §6.3).
package gateio

import (
	"fmt"

	"github.com/yitech/candlegw/adapter"
)

// Connector is the Gate.io adapter.Connector implementation. contract_type
// values: "spot", "um" (USDT-settled futures), "cm" (coin-settled futures).
type Connector struct{}

// New returns a Gate.io Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Exchange() string { return "gateio" }

func (c *Connector) ContractTypes() []string {
	return []string{"spot", "um", "cm"}
}

// SupportsIncrementalSubscribe is true: Gate.io's "subscribe" event is
// additive per channel.
func (c *Connector) SupportsIncrementalSubscribe() bool { return true }

var wsBase = map[string]string{
	"spot": "wss://api.gateio.ws/ws/v4/",
	"um":   "wss://fx-ws.gateio.ws/v4/ws/usdt",
	"cm":   "wss://fx-ws.gateio.ws/v4/ws/btc",
}

func (c *Connector) DialURL(contractType string, symbols []string) (string, error) {
	u, ok := wsBase[contractType]
	if !ok {
		return "", fmt.Errorf("gateio: unknown contract_type %q", contractType)
	}
	return u, nil
}

func (c *Connector) SubscribeMessage(contractType string, symbols []string) ([]byte, bool) {
	if len(symbols) == 0 {
		return nil, false
	}
	return buildSubscribeFrame(contractType, symbols), true
}

// PingMessage: Gate.io accepts the WebSocket protocol ping; no
// application-level frame is required.
func (c *Connector) PingMessage() ([]byte, bool) { return nil, false }

var _ adapter.Connector = (*Connector)(nil)
