// Package risk validates candidate entries against portfolio-level
// constraints and computes position size. Checks run in a fixed order and
// each is a hard reject; sizing happens only after every check passes.
package risk

import (
	"strings"
	"time"

	"github.com/rudirid/announcetrader/internal/config"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/observ"
	"github.com/rudirid/announcetrader/internal/portfolio"
)

// Decision is the gate's verdict on one scored candidate.
type Decision struct {
	Approved bool
	Reason   domain.RejectReason // set when rejected
	Sector   string
	Size     float64 // shares
	Capital  float64 // Size * entry price, after headroom clipping
}

// Gate evaluates candidates against one portfolio/ledger pair.
type Gate struct {
	cfg     config.Risk
	pf      *portfolio.Portfolio
	ledger  *portfolio.Ledger
	sectors map[string]string // ticker -> sector
}

func NewGate(cfg config.Risk, pf *portfolio.Portfolio, ledger *portfolio.Ledger, sectors map[string]string) *Gate {
	return &Gate{cfg: cfg, pf: pf, ledger: ledger, sectors: sectors}
}

// Sector maps a ticker to its sector, defaulting unmapped tickers to
// "other" so they still count against a concentration bucket.
func (g *Gate) Sector(ticker string) string {
	if s, ok := g.sectors[strings.ToUpper(ticker)]; ok {
		return s
	}
	return "other"
}

// Evaluate runs the checks in order: circuit breaker, confidence floor,
// one-position-per-ticker, sector concentration, exposure ceiling. Sizing:
// risk budget over stop distance, scaled by confidence relative to the
// floor, clipped to remaining exposure headroom.
func (g *Gate) Evaluate(score *domain.Score, entryPrice float64, now time.Time) Decision {
	sector := g.Sector(score.Ticker)
	reject := func(reason domain.RejectReason) Decision {
		observ.IncCounter("risk_gate_rejections_total", map[string]string{"reason": string(reason)})
		return Decision{Reason: reason, Sector: sector}
	}

	if g.pf.BreakerActive(now) {
		return reject(domain.RejectCircuitBreaker)
	}
	if score.Confidence < g.cfg.MinConfidence {
		return reject(domain.RejectLowConfidence)
	}
	if g.ledger.HasOpen(score.Ticker) {
		return reject(domain.RejectPositionOpen)
	}
	if g.pf.SectorCount(sector)+1 > g.cfg.MaxPositionsPerSector {
		return reject(domain.RejectSectorCap)
	}

	value := g.pf.Value()
	headroom := value*g.cfg.MaxPortfolioExposurePct - g.pf.Committed()
	if headroom <= 0 {
		return reject(domain.RejectExposureCeiling)
	}

	riskBudget := value * g.cfg.MaxRiskPerTradePct
	size := riskBudget / (entryPrice * g.cfg.StopLossPct)
	size *= score.Confidence / g.cfg.MinConfidence
	capital := size * entryPrice
	if capital > headroom {
		capital = headroom
		size = capital / entryPrice
	}
	if capital > g.pf.Cash() {
		capital = g.pf.Cash()
		size = capital / entryPrice
	}
	if size <= 0 {
		return reject(domain.RejectZeroSize)
	}

	return Decision{Approved: true, Sector: sector, Size: size, Capital: capital}
}
