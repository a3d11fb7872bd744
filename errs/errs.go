// Package errs defines the stable error-code taxonomy from spec §7.
// The code, not the message, is the contract: downstream subscribers key
// their error handling off Code, and the message/ExchangeMessage fields
// are informational only.
package errs

import (
	"errors"
	"fmt"
)

// Code is one of the stable error identifiers raised to subscribers or
// recorded in metrics.
type Code string

const (
	InvalidSymbol           Code = "INVALID_SYMBOL"
	ConnectionPoolBusy      Code = "CONNECTION_POOL_BUSY"
	WSConnectFailed         Code = "WS_CONNECT_FAILED"
	WSSubscribeRejected     Code = "WS_SUBSCRIBE_REJECTED"
	WSStreamTimeout         Code = "WS_STREAM_TIMEOUT"
	RESTBackfillFailed      Code = "REST_BACKFILL_FAILED"
	RateLimited             Code = "RATE_LIMITED"
	InternalQueueBackpressure Code = "INTERNAL_QUEUE_BACKPRESSURE"
)

// Error is a taxonomised error: a stable Code plus a human message and,
// when the originating exchange supplied one, its own error text.
type Error struct {
	Code            Code
	Message         string
	ExchangeMessage string

	Exchange     string
	ContractType string
	Symbols      []string
}

func (e *Error) Error() string {
	if e.ExchangeMessage != "" {
		return fmt.Sprintf("%s: %s (exchange: %s)", e.Code, e.Message, e.ExchangeMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a taxonomised error with no exchange context.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithExchange attaches exchange/contract_type/symbols context to e and
// returns e for chaining.
func (e *Error) WithExchange(exchange, contractType string, symbols ...string) *Error {
	e.Exchange = exchange
	e.ContractType = contractType
	e.Symbols = symbols
	return e
}

// WithExchangeMessage attaches the exchange's own error text.
func (e *Error) WithExchangeMessage(msg string) *Error {
	e.ExchangeMessage = msg
	return e
}

// As reports whether err (or any error it wraps) is an *Error, returning
// it if so — a thin convenience over errors.As for call sites that only
// need the taxonomy code.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
