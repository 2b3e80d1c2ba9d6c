// Package portfolio owns the simulated account and the position lifecycle.
// All mutation happens inside the driver's single-threaded tick; the mutex
// only guards against read access from reporting surfaces.
package portfolio

import (
	"sync"
	"time"

	"github.com/rudirid/announcetrader/internal/observ"
)

// Portfolio is the single source of truth for capital accounting. The risk
// gate reads it on entry, the ledger mutates it on open/close. One instance
// per run; never shared across runs.
type Portfolio struct {
	mu sync.RWMutex

	startingCapital float64
	cash            float64
	committed       float64
	realizedPnL     float64

	dailyRealizedPnL float64
	currentDay       string
	loc              *time.Location

	dailyLossLimitPct float64
	breakerActive     bool
	breakerAt         time.Time
	breakerClearsAt   time.Time

	sectorCounts map[string]int
}

func New(startingCapital float64, dailyLossLimitPct float64, loc *time.Location) *Portfolio {
	if loc == nil {
		loc = time.UTC
	}
	return &Portfolio{
		startingCapital:   startingCapital,
		cash:              startingCapital,
		dailyLossLimitPct: dailyLossLimitPct,
		loc:               loc,
		sectorCounts:      make(map[string]int),
	}
}

// StartDay performs the day-boundary transition: resets daily realized P&L
// and auto-clears an expired circuit breaker. Idempotent within a day; the
// driver calls it on every tick.
func (p *Portfolio) StartDay(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := now.In(p.loc).Format("2006-01-02")
	if day == p.currentDay {
		return
	}
	p.currentDay = day
	p.dailyRealizedPnL = 0
	if p.breakerActive && !now.Before(p.breakerClearsAt) {
		p.breakerActive = false
		observ.Log("circuit_breaker_cleared", map[string]any{"day": day})
	}
}

// Reserve commits capital for a new position. Called by the ledger inside
// position creation so no observable state has capital reserved without a
// position, or a position without reserved capital.
func (p *Portfolio) reserve(sector string, capital float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash -= capital
	p.committed += capital
	p.sectorCounts[sector]++
}

// release returns committed capital plus realized P&L to cash on close and
// trips the circuit breaker when the day's realized loss breaches the
// limit. The breaker blocks new entries only; open positions keep being
// monitored for exits.
func (p *Portfolio) release(sector string, capital, pnl float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed -= capital
	p.cash += capital + pnl
	p.realizedPnL += pnl
	p.dailyRealizedPnL += pnl
	if p.sectorCounts[sector] > 0 {
		p.sectorCounts[sector]--
	}

	if !p.breakerActive && p.dailyRealizedPnLPctLocked() <= -p.dailyLossLimitPct {
		p.breakerActive = true
		p.breakerAt = now
		p.breakerClearsAt = nextDayStart(now, p.loc)
		observ.IncCounter("circuit_breaker_trips_total", nil)
		observ.Log("circuit_breaker_tripped", map[string]any{
			"daily_realized_pnl_pct": p.dailyRealizedPnLPctLocked(),
			"clears_at":              p.breakerClearsAt,
		})
	}
}

// BreakerActive reports whether new entries are blocked.
func (p *Portfolio) BreakerActive(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.breakerActive && now.Before(p.breakerClearsAt)
}

// BreakerState returns activation and auto-clear times for reporting.
func (p *Portfolio) BreakerState() (active bool, at, clearsAt time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.breakerActive, p.breakerAt, p.breakerClearsAt
}

// Value is cash plus committed capital. Realized P&L is already in cash.
func (p *Portfolio) Value() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash + p.committed
}

func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

func (p *Portfolio) Committed() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.committed
}

func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// DailyRealizedPnLPct is today's realized P&L as a fraction of starting
// capital.
func (p *Portfolio) DailyRealizedPnLPct() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dailyRealizedPnLPctLocked()
}

func (p *Portfolio) dailyRealizedPnLPctLocked() float64 {
	if p.startingCapital == 0 {
		return 0
	}
	return p.dailyRealizedPnL / p.startingCapital
}

// SectorCount returns the number of open positions in a sector.
func (p *Portfolio) SectorCount(sector string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sectorCounts[sector]
}

// ExposurePct is committed capital as a fraction of portfolio value.
func (p *Portfolio) ExposurePct() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := p.cash + p.committed
	if v <= 0 {
		return 0
	}
	return p.committed / v
}

func nextDayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
