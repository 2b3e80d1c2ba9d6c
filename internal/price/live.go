package price

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FetchFunc fetches the most recent trade for a ticker from an external
// provider. Retry/backoff is the adapter's concern; the oracle only
// classifies the result.
type FetchFunc func(ctx context.Context, ticker string) (Quote, error)

// LiveOracle wraps a quote fetcher for paper-trading runs. Every fetched
// quote is recorded into a rolling in-memory window so the technical stages
// can read recent history without extra provider calls.
type LiveOracle struct {
	fetch   FetchFunc
	window  int
	timeout time.Duration

	mu   sync.Mutex
	seen map[string][]Quote // oldest first, capped at window
}

func NewLiveOracle(fetch FetchFunc, window int, timeout time.Duration) *LiveOracle {
	if window <= 0 {
		window = 50
	}
	return &LiveOracle{
		fetch:   fetch,
		window:  window,
		timeout: timeout,
		seen:    make(map[string][]Quote),
	}
}

// PriceAt fetches the latest trade. The timestamp contract still holds in
// live mode: a provider clock running ahead of the query time is a defect
// surfaced as ErrFutureQuote, never silently accepted.
func (o *LiveOracle) PriceAt(ctx context.Context, ticker string, ts time.Time) (Quote, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	q, err := o.fetch(ctx, ticker)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	if q.Timestamp.After(ts) {
		return Quote{}, fmt.Errorf("%s stamped %s, queried %s: %w",
			ticker, q.Timestamp.Format(time.RFC3339), ts.Format(time.RFC3339), ErrFutureQuote)
	}
	o.record(q)
	return q, nil
}

// History returns quotes observed so far for the ticker, oldest first,
// restricted to timestamps at or before ts.
func (o *LiveOracle) History(_ context.Context, ticker string, ts time.Time, n int) ([]Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.seen[ticker]
	var out []Quote
	for _, q := range s {
		if !q.Timestamp.After(ts) {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (o *LiveOracle) record(q Quote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := append(o.seen[q.Ticker], q)
	if len(s) > o.window {
		s = s[len(s)-o.window:]
	}
	o.seen[q.Ticker] = s
}
