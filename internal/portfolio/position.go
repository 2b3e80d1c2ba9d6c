package portfolio

import (
	"time"

	"github.com/rudirid/announcetrader/internal/domain"
)

// State of a position. CANDIDATE exists only transiently inside risk-gate
// evaluation and never persists, so only OPEN and CLOSED appear here.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Position is one simulated holding. Owned exclusively by the Ledger:
// created on risk-gate approval, mutated only by exit evaluation and
// mark-to-market, never destroyed. Closed positions persist for
// attribution.
type Position struct {
	ID               string           `json:"id"`
	EventID          string           `json:"event_id"`
	Ticker           string           `json:"ticker"`
	Sector           string           `json:"sector"`
	Direction        domain.Direction `json:"direction"`
	Confidence       float64          `json:"confidence"`
	EntryPrice       float64          `json:"entry_price"`
	EntryTime        time.Time        `json:"entry_time"`
	Size             float64          `json:"size"`
	CapitalCommitted float64          `json:"capital_committed"`

	PeakPrice   float64 `json:"peak_price_since_entry"`
	TroughPrice float64 `json:"trough_price_since_entry"`
	LastPrice   float64 `json:"last_price"`

	State      State             `json:"state"`
	ExitPrice  float64           `json:"exit_price,omitempty"`
	ExitTime   time.Time         `json:"exit_time,omitempty"`
	ExitReason domain.ExitReason `json:"exit_reason,omitempty"`
}

// ReturnPct is the direction-aware unrealized return at a price.
func (p *Position) ReturnPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	move := (price - p.EntryPrice) / p.EntryPrice
	if p.Direction == domain.Short {
		return -move
	}
	return move
}

// PnL is the direction-aware profit at a price.
func (p *Position) PnL(price float64) float64 {
	return p.ReturnPct(price) * p.CapitalCommitted
}

// FavorableExtreme is the best price seen since entry for this direction:
// the peak for longs, the trough for shorts.
func (p *Position) FavorableExtreme() float64 {
	if p.Direction == domain.Short {
		return p.TroughPrice
	}
	return p.PeakPrice
}

// Retracement is the fractional give-back from the favorable extreme.
func (p *Position) Retracement(price float64) float64 {
	ext := p.FavorableExtreme()
	if ext <= 0 {
		return 0
	}
	if p.Direction == domain.Short {
		return (price - ext) / ext
	}
	return (ext - price) / ext
}
