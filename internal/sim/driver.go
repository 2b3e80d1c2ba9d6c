// Package sim orchestrates one run: pull event, score, gate, open, sweep
// exits. Replay is single-threaded and fully deterministic. Live mode has
// exactly one asynchronous boundary, the feed pump goroutine, and every
// event is processed to completion before the next is consumed, which
// serializes per-ticker updates by construction.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rudirid/announcetrader/internal/attribution"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/feed"
	"github.com/rudirid/announcetrader/internal/observ"
	"github.com/rudirid/announcetrader/internal/portfolio"
	"github.com/rudirid/announcetrader/internal/price"
	"github.com/rudirid/announcetrader/internal/risk"
	"github.com/rudirid/announcetrader/internal/signal"
)

// Skip reasons, aggregated into the final report so attribution's
// sample-size caveat can account for gaps.
const (
	SkipNoEntryPrice = "no_entry_price"
	SkipNoSweepPrice = "no_sweep_price"
	SkipPriceFetch   = "price_fetch_error"
	SkipScoreError   = "score_error"
	SkipBadEvent     = "malformed_event"
)

// PriceSource is what the driver needs from the price side: point-in-time
// lookups plus recent history for exit-time trend checks.
type PriceSource interface {
	price.Oracle
	price.HistoryProvider
}

// Recorder receives the run's append-only log. *journal.Journal implements
// it; tests use NopRecorder.
type Recorder interface {
	RecordScore(*domain.Score) error
	RecordOpen(*portfolio.Position) error
	RecordClose(*portfolio.Position) error
	RecordRejection(eventID, ticker, stage string, reason domain.RejectReason, stages []domain.StageContribution, at time.Time) error
	RecordSkip(reason, detail string, at time.Time) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordScore(*domain.Score) error          { return nil }
func (NopRecorder) RecordOpen(*portfolio.Position) error     { return nil }
func (NopRecorder) RecordClose(*portfolio.Position) error    { return nil }
func (NopRecorder) RecordRejection(string, string, string, domain.RejectReason, []domain.StageContribution, time.Time) error {
	return nil
}
func (NopRecorder) RecordSkip(string, string, time.Time) error { return nil }

// Options tunes the loop; zero values get sane defaults.
type Options struct {
	SweepInterval       time.Duration // live exit-sweep cadence
	MaxPriceFailures    int           // consecutive price failures before abort
	TrendBars           int
	TrendThresholdPct   float64
	MaxConsecutiveSkips int // consecutive skipped events before abort
}

// Result summarizes one completed (or cancelled) run.
type Result struct {
	EventsProcessed int                `json:"events_processed"`
	Scored          int                `json:"scored"`
	Rejected        int                `json:"rejected"`
	PositionsOpened int                `json:"positions_opened"`
	PositionsClosed int                `json:"positions_closed"`
	ForcedClosed    int                `json:"forced_closed"`
	Skipped         map[string]int     `json:"skipped"`
	FinalValue      float64            `json:"final_value"`
	RealizedPnL     float64            `json:"realized_pnl"`
	Attribution     attribution.Report `json:"attribution"`
}

// Driver wires the stages together. One driver per run; state is never
// shared across runs.
type Driver struct {
	source   feed.Source
	prices   PriceSource
	scorer   *signal.Scorer
	gate     *risk.Gate
	ledger   *portfolio.Ledger
	pf       *portfolio.Portfolio
	rec      Recorder
	clock    feed.Clock
	opts     Options
	skips    map[string]int
	skipRun  int // consecutive skipped events
	priceRun int // consecutive sweep price failures

	events   int
	scored   int
	rejected int
	opened   int
}

func NewDriver(source feed.Source, prices PriceSource, scorer *signal.Scorer, gate *risk.Gate,
	ledger *portfolio.Ledger, pf *portfolio.Portfolio, rec Recorder, clock feed.Clock, opts Options) *Driver {
	if rec == nil {
		rec = NopRecorder{}
	}
	if clock == nil {
		clock = feed.RealClock{}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.MaxPriceFailures <= 0 {
		opts.MaxPriceFailures = 5
	}
	if opts.TrendBars <= 0 {
		opts.TrendBars = 10
	}
	if opts.TrendThresholdPct <= 0 {
		opts.TrendThresholdPct = 0.01
	}
	if opts.MaxConsecutiveSkips <= 0 {
		opts.MaxConsecutiveSkips = 20
	}
	return &Driver{
		source: source, prices: prices, scorer: scorer, gate: gate,
		ledger: ledger, pf: pf, rec: rec, clock: clock, opts: opts,
		skips: make(map[string]int),
	}
}

// RunReplay drains the source in detected_at order. Simulated time is each
// event's detected_at; exits are swept at every event tick. Still-open
// positions are force-closed at the end with FORCED_EOW.
func (d *Driver) RunReplay(ctx context.Context) (Result, error) {
	var now time.Time
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		ev, err := d.source.Next(ctx)
		if errors.Is(err, feed.ErrEndOfStream) {
			break
		}
		if err != nil {
			// Replay sources fail only on ordering defects; results past
			// this point would be untrustworthy.
			return d.finish(now), fmt.Errorf("replay feed: %w", err)
		}
		now = ev.DetectedAt
		d.pf.StartDay(now)
		if err := d.sweep(ctx, now); err != nil {
			return d.finish(now), err
		}
		if err := d.processEvent(ctx, ev, now); err != nil {
			return d.finish(now), err
		}
	}
	if !now.IsZero() {
		if err := d.sweep(ctx, now); err != nil {
			return d.finish(now), err
		}
	}
	return d.finish(now), nil
}

// RunLive polls until the duration horizon or cancellation. The feed pump
// is the only concurrent part; scoring, gating, and ledger mutation all run
// on this goroutine, so event N never consumes state mutated by event N+1.
func (d *Driver) RunLive(ctx context.Context, duration time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	type fetched struct {
		ev  domain.MarketEvent
		err error
	}
	events := make(chan fetched, 16)
	go func() {
		for {
			ev, err := d.source.Next(ctx)
			select {
			case events <- fetched{ev, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(d.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.finish(d.clock.Now()), nil

		case <-ticker.C:
			now := d.clock.Now()
			d.pf.StartDay(now)
			if err := d.sweep(ctx, now); err != nil {
				return d.finish(now), err
			}

		case f := <-events:
			now := d.clock.Now()
			if f.err != nil {
				if errors.Is(f.err, feed.ErrEndOfStream) || errors.Is(f.err, context.Canceled) ||
					errors.Is(f.err, context.DeadlineExceeded) {
					return d.finish(now), nil
				}
				// The source already absorbed transient failures; this is
				// the escalated fatal case. Report what we have.
				return d.finish(now), fmt.Errorf("live feed: %w", f.err)
			}
			d.pf.StartDay(now)
			if err := d.processEvent(ctx, f.ev, now); err != nil {
				return d.finish(now), err
			}
		}
	}
}

// processEvent runs score -> gate -> open for one event, completely, before
// returning. Recoverable problems are recorded as skips; invariant
// violations (future-stamped quotes) abort.
func (d *Driver) processEvent(ctx context.Context, ev domain.MarketEvent, now time.Time) error {
	d.events++
	if ev.Ticker == "" || ev.DetectedAt.Before(ev.PublishedAt) {
		d.skipEvent(SkipBadEvent, ev.ID, now)
		return d.skipBudget()
	}

	score, rejection, err := d.scorer.Score(ctx, ev, now)
	if err != nil {
		if errors.Is(err, price.ErrFutureQuote) {
			return err
		}
		observ.Error("score_failed", err, map[string]any{"event_id": ev.ID})
		d.skipEvent(SkipScoreError, ev.ID, now)
		return d.skipBudget()
	}
	d.skipRun = 0
	if rejection != nil {
		d.rejected++
		_ = d.rec.RecordRejection(rejection.EventID, rejection.Ticker, rejection.Stage, rejection.Reason, rejection.Stages, now)
		return nil
	}
	d.scored++
	_ = d.rec.RecordScore(score)

	quote, err := d.prices.PriceAt(ctx, ev.Ticker, now)
	if err != nil {
		if errors.Is(err, price.ErrFutureQuote) {
			return err
		}
		if errors.Is(err, price.ErrNoData) {
			// Data-quality gap: skip and log with event identity, never
			// substitute a guessed price.
			_ = d.rec.RecordRejection(ev.ID, ev.Ticker, "entry", domain.RejectNoPrice, score.Stages, now)
			d.skipEvent(SkipNoEntryPrice, ev.ID, now)
			return nil
		}
		observ.Error("entry_price_failed", err, map[string]any{"event_id": ev.ID, "ticker": ev.Ticker})
		d.skipEvent(SkipPriceFetch, ev.ID, now)
		return d.skipBudget()
	}

	decision := d.gate.Evaluate(score, quote.Price, now)
	if !decision.Approved {
		d.rejected++
		_ = d.rec.RecordRejection(ev.ID, ev.Ticker, "risk_gate", decision.Reason, score.Stages, now)
		return nil
	}
	pos, err := d.ledger.Open(score, decision.Sector, quote.Price, decision.Size, now)
	if err != nil {
		return fmt.Errorf("open %s: %w", ev.Ticker, err)
	}
	d.opened++
	_ = d.rec.RecordOpen(pos)
	observ.Log("position_opened", map[string]any{
		"ticker": pos.Ticker, "direction": string(pos.Direction),
		"size": pos.Size, "entry_price": pos.EntryPrice, "confidence": pos.Confidence,
	})
	return nil
}

// sweep marks every open position and applies exit rules. A ticker without
// a price this tick is skipped, not guessed.
func (d *Driver) sweep(ctx context.Context, now time.Time) error {
	for _, pos := range d.ledger.OpenPositions() {
		quote, err := d.prices.PriceAt(ctx, pos.Ticker, now)
		if err != nil {
			if errors.Is(err, price.ErrFutureQuote) {
				return err
			}
			d.skip(SkipNoSweepPrice, pos.Ticker, now)
			d.priceRun++
			if d.priceRun >= d.opts.MaxPriceFailures {
				return fmt.Errorf("sim: %d consecutive sweep price failures", d.priceRun)
			}
			continue
		}
		d.priceRun = 0
		trend, err := signal.TrendAt(ctx, d.prices, pos.Ticker, now, d.opts.TrendBars, d.opts.TrendThresholdPct)
		if err != nil {
			trend = domain.TrendFlat
		}
		if closed := d.ledger.UpdatePrice(pos.Ticker, quote.Price, trend, now); closed != nil {
			_ = d.rec.RecordClose(closed)
			observ.Observe("position_return_pct", closed.ReturnPct(closed.ExitPrice),
				map[string]string{"reason": string(closed.ExitReason)})
			observ.Log("position_closed", map[string]any{
				"ticker": closed.Ticker, "reason": string(closed.ExitReason),
				"return_pct": closed.ReturnPct(closed.ExitPrice),
			})
		}
	}
	observ.SetGauge("portfolio_value", d.pf.Value(), nil)
	observ.SetGauge("portfolio_exposure_pct", d.pf.ExposurePct(), nil)
	return nil
}

// finish force-closes whatever is still open at the last known price and
// assembles the report. Runs even after a fatal abort so the caller always
// gets skip accounting.
func (d *Driver) finish(now time.Time) Result {
	if now.IsZero() {
		now = d.clock.Now()
	}
	forced := d.ledger.ForceCloseAll(now)
	for _, pos := range forced {
		_ = d.rec.RecordClose(pos)
	}

	closed := d.ledger.Closed()
	samples := make([]attribution.Sample, 0, len(closed))
	for _, pos := range closed {
		samples = append(samples, attribution.Sample{
			Confidence: pos.Confidence,
			ReturnPct:  pos.ReturnPct(pos.ExitPrice),
		})
	}

	return Result{
		EventsProcessed: d.events,
		Scored:          d.scored,
		Rejected:        d.rejected,
		PositionsOpened: d.opened,
		PositionsClosed: len(closed),
		ForcedClosed:    len(forced),
		Skipped:         d.skips,
		FinalValue:      d.pf.Value(),
		RealizedPnL:     d.pf.RealizedPnL(),
		Attribution:     attribution.Analyze(samples),
	}
}

// skip records a skipped tick. Sweep-time price misses count only against
// the price-failure budget; event-level skips go through skipEvent so the
// two escalation budgets stay independent.
func (d *Driver) skip(reason, detail string, now time.Time) {
	d.skips[reason]++
	observ.IncCounter("ticks_skipped_total", map[string]string{"reason": reason})
	_ = d.rec.RecordSkip(reason, detail, now)
}

func (d *Driver) skipEvent(reason, detail string, now time.Time) {
	d.skip(reason, detail, now)
	d.skipRun++
}

// skipBudget escalates a long run of consecutive skipped events to a fatal
// abort so a run never grinds on silently with no usable data.
func (d *Driver) skipBudget() error {
	if d.skipRun >= d.opts.MaxConsecutiveSkips {
		return fmt.Errorf("sim: %d consecutive events skipped", d.skipRun)
	}
	return nil
}
