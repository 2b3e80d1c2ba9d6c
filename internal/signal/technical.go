package signal

import (
	"context"
	"errors"
	"time"

	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/price"
)

// ClassifyTrend reduces a quote window to up/down/flat using net move over
// the window. thresholdPct is the minimum fractional move to count as a
// trend. Fewer than three bars is always flat: not enough evidence.
func ClassifyTrend(quotes []price.Quote, thresholdPct float64) domain.Trend {
	if len(quotes) < 3 {
		return domain.TrendFlat
	}
	first, last := quotes[0].Price, quotes[len(quotes)-1].Price
	if first <= 0 {
		return domain.TrendFlat
	}
	move := (last - first) / first
	switch {
	case move >= thresholdPct:
		return domain.TrendUp
	case move <= -thresholdPct:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

// RecentMove returns the fractional net move over the last n bars at or
// before ts, or 0 when history is unavailable (missing history is not an
// error for soft stages).
func RecentMove(ctx context.Context, h price.HistoryProvider, ticker string, ts time.Time, n int) float64 {
	quotes, err := h.History(ctx, ticker, ts, n)
	if err != nil || len(quotes) < 2 {
		return 0
	}
	first, last := quotes[0].Price, quotes[len(quotes)-1].Price
	if first <= 0 {
		return 0
	}
	return (last - first) / first
}

// TrendAt classifies the trend for a ticker at a point in time.
func TrendAt(ctx context.Context, h price.HistoryProvider, ticker string, ts time.Time, n int, thresholdPct float64) (domain.Trend, error) {
	quotes, err := h.History(ctx, ticker, ts, n)
	if err != nil {
		if errors.Is(err, price.ErrNoData) {
			return domain.TrendFlat, nil
		}
		return domain.TrendFlat, err
	}
	return ClassifyTrend(quotes, thresholdPct), nil
}
