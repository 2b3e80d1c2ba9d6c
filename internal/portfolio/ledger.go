package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rudirid/announcetrader/internal/config"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/observ"
)

// Ledger owns every position and advances the OPEN -> CLOSED state machine.
// At most one OPEN position exists per ticker.
type Ledger struct {
	pf     *Portfolio
	exits  config.Exits
	open   map[string]*Position // by ticker
	closed []*Position
}

func NewLedger(pf *Portfolio, exits config.Exits) *Ledger {
	return &Ledger{pf: pf, exits: exits, open: make(map[string]*Position)}
}

// HasOpen reports whether a ticker already has an OPEN position.
func (l *Ledger) HasOpen(ticker string) bool {
	_, ok := l.open[ticker]
	return ok
}

// Open creates an OPEN position and commits its capital in the portfolio in
// the same step: no observable state has one without the other.
func (l *Ledger) Open(score *domain.Score, sector string, entryPrice, size float64, now time.Time) (*Position, error) {
	if _, ok := l.open[score.Ticker]; ok {
		return nil, fmt.Errorf("ledger: %s already has an open position", score.Ticker)
	}
	capital := size * entryPrice
	pos := &Position{
		ID:               uuid.NewString(),
		EventID:          score.EventID,
		Ticker:           score.Ticker,
		Sector:           sector,
		Direction:        score.Direction,
		Confidence:       score.Confidence,
		EntryPrice:       entryPrice,
		EntryTime:        now,
		Size:             size,
		CapitalCommitted: capital,
		PeakPrice:        entryPrice,
		TroughPrice:      entryPrice,
		LastPrice:        entryPrice,
		State:            StateOpen,
	}
	l.open[score.Ticker] = pos
	l.pf.reserve(sector, capital)
	observ.IncCounter("positions_opened_total", nil)
	return pos, nil
}

// UpdatePrice marks an open position to market and evaluates exit rules in
// fixed priority order, taking the first match:
//
//	take-profit, stop-loss, trailing stop (after activation),
//	momentum reversal, time stop.
//
// No implicit fallback: with nothing triggered the position stays OPEN.
// Returns the position if it closed on this update, else nil.
func (l *Ledger) UpdatePrice(ticker string, price float64, trend domain.Trend, now time.Time) *Position {
	pos, ok := l.open[ticker]
	if !ok || price <= 0 {
		return nil
	}
	if price > pos.PeakPrice {
		pos.PeakPrice = price
	}
	if price < pos.TroughPrice {
		pos.TroughPrice = price
	}
	pos.LastPrice = price

	ret := pos.ReturnPct(price)
	bestRet := pos.ReturnPct(pos.FavorableExtreme())

	var reason domain.ExitReason
	switch {
	case ret >= l.exits.TakeProfitPct:
		reason = domain.ExitTakeProfit
	case ret <= -l.exits.StopLossPct:
		reason = domain.ExitStopLoss
	case bestRet >= l.exits.TrailingActivationPct && pos.Retracement(price) >= l.exits.TrailingStopPct:
		reason = domain.ExitTrailingStop
	case trend.Conflicts(pos.Direction):
		reason = domain.ExitMomentumReversal
	case now.Sub(pos.EntryTime) >= time.Duration(l.exits.MaxHoldHours)*time.Hour:
		reason = domain.ExitTimeStop
	default:
		return nil
	}
	return l.close(pos, price, reason, now)
}

// ForceCloseAll closes every OPEN position at its last known price with
// reason FORCED_EOW. Called at the end of a run or on cancellation so no
// position is left dangling.
func (l *Ledger) ForceCloseAll(now time.Time) []*Position {
	var out []*Position
	for _, pos := range l.openSnapshot() {
		out = append(out, l.close(pos, pos.LastPrice, domain.ExitForcedEOW, now))
	}
	return out
}

// close transitions to CLOSED exactly once and settles capital.
func (l *Ledger) close(pos *Position, price float64, reason domain.ExitReason, now time.Time) *Position {
	pos.State = StateClosed
	pos.ExitPrice = price
	pos.ExitTime = now
	pos.ExitReason = reason
	pos.LastPrice = price
	delete(l.open, pos.Ticker)
	l.closed = append(l.closed, pos)
	l.pf.release(pos.Sector, pos.CapitalCommitted, pos.PnL(price), now)
	observ.IncCounter("positions_closed_total", map[string]string{"reason": string(reason)})
	return pos
}

// OpenPositions returns the open set sorted by ticker. Stable order keeps
// replay sweeps deterministic.
func (l *Ledger) OpenPositions() []*Position {
	return l.openSnapshot()
}

// Closed returns every closed position in close order.
func (l *Ledger) Closed() []*Position {
	out := make([]*Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// UnrealizedPnL sums open positions' P&L at their last marks.
func (l *Ledger) UnrealizedPnL() float64 {
	var sum float64
	for _, pos := range l.open {
		sum += pos.PnL(pos.LastPrice)
	}
	return sum
}

func (l *Ledger) openSnapshot() []*Position {
	out := make([]*Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
