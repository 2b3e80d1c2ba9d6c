// Package price supplies point-in-time price lookups. The load-bearing
// contract: PriceAt(ticker, t) never returns a quote stamped after t. A
// violation invalidates every backtest result, so oracles check it at the
// boundary and surface it as ErrFutureQuote rather than clamping.
package price

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData means no price is known at or before the query time. Callers
	// skip the affected tick; they never substitute a guessed value.
	ErrNoData = errors.New("price: no data at or before query time")

	// ErrFutureQuote means an adapter produced a quote stamped after the
	// query time. This is a correctness defect, not a recoverable error.
	ErrFutureQuote = errors.New("price: quote stamped after query time")
)

// Quote is one observed price.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Oracle answers "latest price known at or before ts".
type Oracle interface {
	PriceAt(ctx context.Context, ticker string, ts time.Time) (Quote, error)
}

// HistoryProvider returns up to n quotes at or before ts, oldest first.
// Used by the technical-alignment and contrarian stages and by exit sweeps.
type HistoryProvider interface {
	History(ctx context.Context, ticker string, ts time.Time, n int) ([]Quote, error)
}
