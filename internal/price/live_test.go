package price

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLiveOracle_RejectsFutureStampedQuote(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	fetch := func(context.Context, string) (Quote, error) {
		return Quote{Ticker: "BHP", Price: 42.0, Timestamp: now.Add(time.Minute)}, nil
	}
	o := NewLiveOracle(fetch, 10, 0)
	_, err := o.PriceAt(context.Background(), "BHP", now)
	if !errors.Is(err, ErrFutureQuote) {
		t.Fatalf("want ErrFutureQuote, got %v", err)
	}
}

func TestLiveOracle_RecordsWindowForHistory(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	i := 0
	fetch := func(context.Context, string) (Quote, error) {
		i++
		return Quote{Ticker: "BHP", Price: 40 + float64(i), Timestamp: now.Add(time.Duration(i) * time.Minute)}, nil
	}
	o := NewLiveOracle(fetch, 3, 0)
	ctx := context.Background()
	for k := 0; k < 5; k++ {
		if _, err := o.PriceAt(ctx, "BHP", now.Add(time.Hour)); err != nil {
			t.Fatalf("fetch %d: %v", k, err)
		}
	}

	quotes, err := o.History(ctx, "BHP", now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("window should cap at 3 quotes, got %d", len(quotes))
	}
	if quotes[0].Price != 43 || quotes[2].Price != 45 {
		t.Fatalf("window should keep newest quotes oldest-first, got %+v", quotes)
	}

	// History is still point-in-time bounded.
	if _, err := o.History(ctx, "BHP", now, 10); !errors.Is(err, ErrNoData) {
		t.Fatalf("history before all observations: want ErrNoData, got %v", err)
	}
}
