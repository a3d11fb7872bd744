// Package adapter defines the exchange connector contract from spec §9:
// dynamic dispatch across exchanges is expressed as one interface with
// subscribe-payload, frame-parsing, and REST-backfill operations,
// parameterised by contract_type. Five concrete connectors implement it —
// one package each under adapter/{binance,okx,bybit,gateio,hyperliquid}.
package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yitech/candlegw/model/candle"
)

// Connector is what an UpstreamSession drives to speak one exchange's
// wire protocol. A single Connector instance is shared by every session
// of its exchange; it holds no per-session state.
type Connector interface {
	// Exchange returns the short exchange identifier (e.g. "binance").
	Exchange() string

	// ContractTypes lists the contract_type values this connector accepts.
	ContractTypes() []string

	// SupportsIncrementalSubscribe reports whether an already-streaming
	// connection can add symbols via SubscribeMessage, or whether the
	// session must be restarted through SUBSCRIBING with the full set.
	SupportsIncrementalSubscribe() bool

	// DialURL returns the WebSocket URL to open for contractType and the
	// initial symbol set. Some exchanges (Binance) encode the symbol set
	// into the URL itself via combined streams.
	DialURL(contractType string, symbols []string) (string, error)

	// SubscribeMessage builds the control frame to send after dialing (or,
	// when SupportsIncrementalSubscribe, after adding symbols to a live
	// session). send=false means no frame is required (the URL already
	// subscribed the caller, as with Binance combined streams).
	SubscribeMessage(contractType string, symbols []string) (payload []byte, send bool)

	// ParseFrame decodes one inbound WebSocket message. candles may be
	// empty for control/ack frames. reply is non-nil when the exchange
	// requires an application-level response (e.g. OKX text "ping").
	ParseFrame(contractType string, raw []byte) (candles []*candle.Candle, reply []byte, err error)

	// PingMessage returns an application-level keep-alive frame to send on
	// WS_PING_INTERVAL. send=false means the transport's native WebSocket
	// ping frame is sufficient.
	PingMessage() (payload []byte, send bool)

	// RestBackfill fetches the most recent bar for symbol and normalises
	// it into a closed Candle. Used by restpool.Fetcher.
	RestBackfill(ctx context.Context, client *http.Client, contractType, symbol string) (*candle.Candle, error)
}

// Registry resolves a Connector by exchange name.
type Registry map[string]Connector

// Get looks up exchange, returning an error if no connector is registered.
func (r Registry) Get(exchange string) (Connector, error) {
	c, ok := r[exchange]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown exchange %q", exchange)
	}
	return c, nil
}
