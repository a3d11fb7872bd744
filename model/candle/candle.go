// Package candle defines the canonical OHLCV record that every exchange
// connector normalises into and every downstream subscriber receives.
package candle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is the canonical, immutable-once-created representation of a
// 1-minute OHLCV bar. Exchange-native numeric fields are kept as the
// original textual value (matching what the exchange sent). Validate
// parses them into decimal.Decimal only to check invariants; the parsed
// values are not stored and never reformat the value for the wire.
type Candle struct {
	Exchange     string
	ContractType string
	Symbol       string

	OpenTime time.Time // UTC, aligned to a whole minute

	Open   string
	High   string
	Low    string
	Close  string
	Volume string

	TradeNum int64
	IsClosed bool
}

// Validate checks the invariants from spec §3.1: low ≤ open, close, high;
// open_time aligned to a whole minute in UTC; all numeric fields finite.
func (c *Candle) Validate() error {
	if c.Exchange == "" || c.Symbol == "" {
		return fmt.Errorf("candle: exchange and symbol are required")
	}
	if !c.OpenTime.Equal(c.OpenTime.Truncate(time.Minute)) {
		return fmt.Errorf("candle: open_time %s is not minute-aligned", c.OpenTime)
	}
	if c.OpenTime.Location() != time.UTC {
		return fmt.Errorf("candle: open_time must be UTC")
	}

	open, err := decimal.NewFromString(c.Open)
	if err != nil {
		return fmt.Errorf("candle: open %q: %w", c.Open, err)
	}
	high, err := decimal.NewFromString(c.High)
	if err != nil {
		return fmt.Errorf("candle: high %q: %w", c.High, err)
	}
	low, err := decimal.NewFromString(c.Low)
	if err != nil {
		return fmt.Errorf("candle: low %q: %w", c.Low, err)
	}
	closePrice, err := decimal.NewFromString(c.Close)
	if err != nil {
		return fmt.Errorf("candle: close %q: %w", c.Close, err)
	}
	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return fmt.Errorf("candle: volume %q: %w", c.Volume, err)
	}

	if low.GreaterThan(open) || low.GreaterThan(high) || low.GreaterThan(closePrice) {
		return fmt.Errorf("candle: low %s exceeds one of open=%s high=%s close=%s", low, open, high, closePrice)
	}
	if volume.IsNegative() {
		return fmt.Errorf("candle: volume %s is negative", volume)
	}
	if c.TradeNum < 0 {
		return fmt.Errorf("candle: trade_num %d is negative", c.TradeNum)
	}
	return nil
}

// Key identifies the (exchange, contract_type, symbol) tuple this candle
// belongs to — the SubscriptionKey from spec §3.1.
type Key struct {
	Exchange     string
	ContractType string
	Symbol       string
}

func (k Key) String() string {
	return k.Exchange + ":" + k.ContractType + ":" + k.Symbol
}

// KeyOf returns the SubscriptionKey for c.
func KeyOf(c *Candle) Key {
	return Key{Exchange: c.Exchange, ContractType: c.ContractType, Symbol: c.Symbol}
}

// DedupKey is the (symbol, open_time) tuple the deduplicator checks
// closed candles against (spec §4.2). It intentionally excludes exchange
// and contract_type: dedup operates per upstream session, which already
// pins those two.
type DedupKey struct {
	Symbol   string
	OpenTime int64 // unix millis
}

func DedupKeyOf(c *Candle) DedupKey {
	return DedupKey{Symbol: c.Symbol, OpenTime: c.OpenTime.UnixMilli()}
}
