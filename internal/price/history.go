package price

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// HistoryOracle serves a fixed historical series. Replay mode restricts
// every lookup to bars at or before the query timestamp, which makes the
// no-lookahead property hold by construction.
type HistoryOracle struct {
	series map[string][]Quote // sorted by Timestamp ascending
}

// NewHistoryOracle builds an oracle over per-ticker series. Input order does
// not matter; each series is sorted on construction.
func NewHistoryOracle(quotes []Quote) *HistoryOracle {
	o := &HistoryOracle{series: make(map[string][]Quote)}
	for _, q := range quotes {
		o.series[q.Ticker] = append(o.series[q.Ticker], q)
	}
	for t := range o.series {
		s := o.series[t]
		sort.Slice(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
		o.series[t] = s
	}
	return o
}

// PriceAt returns the latest quote at or before ts.
func (o *HistoryOracle) PriceAt(_ context.Context, ticker string, ts time.Time) (Quote, error) {
	s := o.series[ticker]
	i := lastAtOrBefore(s, ts)
	if i < 0 {
		return Quote{}, fmt.Errorf("%s at %s: %w", ticker, ts.Format(time.RFC3339), ErrNoData)
	}
	q := s[i]
	if q.Timestamp.After(ts) {
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrFutureQuote)
	}
	return q, nil
}

// History returns up to n quotes at or before ts, oldest first.
func (o *HistoryOracle) History(_ context.Context, ticker string, ts time.Time, n int) ([]Quote, error) {
	s := o.series[ticker]
	i := lastAtOrBefore(s, ts)
	if i < 0 {
		return nil, fmt.Errorf("%s at %s: %w", ticker, ts.Format(time.RFC3339), ErrNoData)
	}
	start := i - n + 1
	if start < 0 {
		start = 0
	}
	out := make([]Quote, i-start+1)
	copy(out, s[start:i+1])
	return out, nil
}

// LastKnown returns the final quote in a ticker's series, used for forced
// end-of-window closes when the horizon falls past the data.
func (o *HistoryOracle) LastKnown(ticker string) (Quote, bool) {
	s := o.series[ticker]
	if len(s) == 0 {
		return Quote{}, false
	}
	return s[len(s)-1], true
}

// lastAtOrBefore returns the index of the latest quote with
// Timestamp <= ts, or -1.
func lastAtOrBefore(s []Quote, ts time.Time) int {
	return sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(ts) }) - 1
}
