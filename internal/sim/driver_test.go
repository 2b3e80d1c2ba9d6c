package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rudirid/announcetrader/internal/config"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/feed"
	"github.com/rudirid/announcetrader/internal/observ"
	"github.com/rudirid/announcetrader/internal/portfolio"
	"github.com/rudirid/announcetrader/internal/price"
	"github.com/rudirid/announcetrader/internal/risk"
	"github.com/rudirid/announcetrader/internal/signal"
)

type captureRecorder struct {
	NopRecorder
	opens      []*portfolio.Position
	closes     []*portfolio.Position
	rejections []domain.RejectReason
}

func (r *captureRecorder) RecordOpen(p *portfolio.Position) error {
	r.opens = append(r.opens, p)
	return nil
}

func (r *captureRecorder) RecordClose(p *portfolio.Position) error {
	r.closes = append(r.closes, p)
	return nil
}

func (r *captureRecorder) RecordRejection(_, _, _ string, reason domain.RejectReason, _ []domain.StageContribution, _ time.Time) error {
	r.rejections = append(r.rejections, reason)
	return nil
}

var t0 = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func flatThenSpike(ticker string) []price.Quote {
	return []price.Quote{
		{Ticker: ticker, Price: 10, Timestamp: t0.Add(-30 * time.Minute)},
		{Ticker: ticker, Price: 10, Timestamp: t0.Add(-20 * time.Minute)},
		{Ticker: ticker, Price: 10, Timestamp: t0.Add(-10 * time.Minute)},
		{Ticker: ticker, Price: 10, Timestamp: t0},
		{Ticker: ticker, Price: 11.5, Timestamp: t0.Add(30 * time.Minute)},
	}
}

func newTestDriver(events []domain.MarketEvent, quotes []price.Quote, rec Recorder) *Driver {
	var cfg config.Root
	cfg.Mode = "replay"
	cfg.ApplyDefaults()

	source := feed.NewReplaySource(events, time.Minute, time.Time{}, time.Time{})
	oracle := price.NewHistoryOracle(quotes)
	pf := portfolio.New(cfg.StartingCapital, cfg.Risk.DailyLossLimitPct, time.UTC)
	ledger := portfolio.NewLedger(pf, cfg.Exits)
	gate := risk.NewGate(cfg.Risk, pf, ledger, map[string]string{"BHP": "mining"})
	scorer := signal.NewScorer(cfg.Scorer, time.UTC, signal.NewLexiconSentiment(), oracle)

	return NewDriver(source, oracle, scorer, gate, ledger, pf, rec, feed.RealClock{}, Options{
		TrendBars:         cfg.Scorer.HistoryBars,
		TrendThresholdPct: cfg.Scorer.TrendThresholdPct,
	})
}

func TestRunReplay_OpensAndTakesProfit(t *testing.T) {
	events := []domain.MarketEvent{
		{ID: "a", Ticker: "BHP", Headline: "Record profit and broker upgrade", Category: "earnings", PublishedAt: t0},
		// A later dull event whose sweep realizes the first trade's exit.
		{ID: "b", Ticker: "CSL", Headline: "Quarterly administrative circular", Category: "admin", PublishedAt: t0.Add(time.Hour)},
	}
	rec := &captureRecorder{}
	d := newTestDriver(events, flatThenSpike("BHP"), rec)

	openedBefore := observ.CounterValue("positions_opened_total", nil)
	closedBefore := observ.CounterValue("positions_closed_total",
		map[string]string{"reason": string(domain.ExitTakeProfit)})

	result, err := d.RunReplay(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := observ.CounterValue("positions_opened_total", nil) - openedBefore; got != 1 {
		t.Fatalf("opened counter delta: want 1, got %d", got)
	}
	if got := observ.CounterValue("positions_closed_total",
		map[string]string{"reason": string(domain.ExitTakeProfit)}) - closedBefore; got != 1 {
		t.Fatalf("take-profit close counter delta: want 1, got %d", got)
	}

	if result.EventsProcessed != 2 || result.Scored != 1 || result.Rejected != 1 {
		t.Fatalf("counts: %+v", result)
	}
	if result.PositionsOpened != 1 || result.PositionsClosed != 1 || result.ForcedClosed != 0 {
		t.Fatalf("positions: %+v", result)
	}

	if len(rec.opens) != 1 || rec.opens[0].Ticker != "BHP" {
		t.Fatalf("opens: %+v", rec.opens)
	}
	if rec.opens[0].EntryPrice != 10 {
		t.Fatalf("entry price: want 10, got %v", rec.opens[0].EntryPrice)
	}
	if len(rec.closes) != 1 || rec.closes[0].ExitReason != domain.ExitTakeProfit {
		t.Fatalf("closes: %+v", rec.closes)
	}
	if len(rec.rejections) != 1 || rec.rejections[0] != domain.RejectLowMateriality {
		t.Fatalf("rejections: %v", rec.rejections)
	}

	// +15% on the committed capital, realized.
	wantPnL := rec.opens[0].CapitalCommitted * 0.15
	if math.Abs(result.RealizedPnL-wantPnL) > 1e-6 {
		t.Fatalf("realized pnl: want %v, got %v", wantPnL, result.RealizedPnL)
	}
	if math.Abs(result.FinalValue-(100000+wantPnL)) > 1e-6 {
		t.Fatalf("final value: got %v", result.FinalValue)
	}
	if result.Attribution.SampleCount != 1 || !result.Attribution.InsufficientSample {
		t.Fatalf("attribution: %+v", result.Attribution)
	}
}

func TestRunReplay_ForceClosesAtEnd(t *testing.T) {
	events := []domain.MarketEvent{
		{ID: "a", Ticker: "BHP", Headline: "Record profit and broker upgrade", Category: "earnings", PublishedAt: t0},
	}
	rec := &captureRecorder{}
	d := newTestDriver(events, flatThenSpike("BHP")[:4], rec) // no spike bar, no exit trigger

	result, err := d.RunReplay(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.PositionsOpened != 1 || result.ForcedClosed != 1 {
		t.Fatalf("want one forced close, got %+v", result)
	}
	if len(rec.closes) != 1 || rec.closes[0].ExitReason != domain.ExitForcedEOW {
		t.Fatalf("closes: %+v", rec.closes)
	}
	if rec.closes[0].ExitPrice != 10 {
		t.Fatalf("forced close must settle at the last mark, got %v", rec.closes[0].ExitPrice)
	}
	if result.RealizedPnL != 0 {
		t.Fatalf("flat exit should realize zero, got %v", result.RealizedPnL)
	}
}

func TestRunReplay_MissingEntryPriceIsSkippedNotGuessed(t *testing.T) {
	events := []domain.MarketEvent{
		{ID: "a", Ticker: "XYZ", Headline: "Record profit and broker upgrade", Category: "earnings", PublishedAt: t0},
	}
	rec := &captureRecorder{}
	d := newTestDriver(events, nil, rec) // no quotes at all

	result, err := d.RunReplay(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Scored != 1 || result.PositionsOpened != 0 {
		t.Fatalf("counts: %+v", result)
	}
	if result.Skipped[SkipNoEntryPrice] != 1 {
		t.Fatalf("want one %s skip, got %v", SkipNoEntryPrice, result.Skipped)
	}
	if len(rec.rejections) != 1 || rec.rejections[0] != domain.RejectNoPrice {
		t.Fatalf("rejections: %v", rec.rejections)
	}
}

func TestRunReplay_MalformedEventsCountAgainstSkipBudget(t *testing.T) {
	var events []domain.MarketEvent
	for i := 0; i < 5; i++ {
		events = append(events, domain.MarketEvent{
			ID: "bad", Ticker: "", PublishedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}
	d := newTestDriver(events, nil, nil)
	d.opts.MaxConsecutiveSkips = 3

	_, err := d.RunReplay(context.Background())
	if err == nil {
		t.Fatal("want abort after consecutive malformed events")
	}
}

// vanishingPrices serves real quotes up to a cutoff, then nothing: every
// later lookup is a data gap.
type vanishingPrices struct {
	oracle *price.HistoryOracle
	until  time.Time
}

func (v vanishingPrices) PriceAt(ctx context.Context, ticker string, ts time.Time) (price.Quote, error) {
	if ts.After(v.until) {
		return price.Quote{}, price.ErrNoData
	}
	return v.oracle.PriceAt(ctx, ticker, ts)
}

func (v vanishingPrices) History(ctx context.Context, ticker string, ts time.Time, n int) ([]price.Quote, error) {
	return v.oracle.History(ctx, ticker, ts, n)
}

func TestRunReplay_SweepMissesDoNotConsumeEventSkipBudget(t *testing.T) {
	var cfg config.Root
	cfg.Mode = "replay"
	cfg.ApplyDefaults()

	flat := func(ticker string) []price.Quote {
		var out []price.Quote
		for i := -3; i <= 0; i++ {
			out = append(out, price.Quote{Ticker: ticker, Price: 10, Timestamp: t0.Add(time.Duration(i) * 10 * time.Minute)})
		}
		return out
	}
	prices := vanishingPrices{
		oracle: price.NewHistoryOracle(append(flat("BHP"), flat("CSL")...)),
		until:  t0.Add(5 * time.Minute),
	}

	events := []domain.MarketEvent{
		{ID: "a", Ticker: "BHP", Headline: "Record profit and broker upgrade", Category: "earnings", PublishedAt: t0},
		{ID: "b", Ticker: "CSL", Headline: "Record profit and broker upgrade", Category: "earnings", PublishedAt: t0.Add(time.Minute)},
		// Long after prices vanish: the sweep misses both open positions,
		// then the event itself is malformed.
		{ID: "c", Ticker: "", PublishedAt: t0.Add(2 * time.Hour)},
	}

	source := feed.NewReplaySource(events, time.Minute, time.Time{}, time.Time{})
	pf := portfolio.New(cfg.StartingCapital, cfg.Risk.DailyLossLimitPct, time.UTC)
	ledger := portfolio.NewLedger(pf, cfg.Exits)
	gate := risk.NewGate(cfg.Risk, pf, ledger, map[string]string{"BHP": "mining"})
	scorer := signal.NewScorer(cfg.Scorer, time.UTC, signal.NewLexiconSentiment(), prices)

	d := NewDriver(source, prices, scorer, gate, ledger, pf, nil, feed.RealClock{}, Options{
		TrendBars:           cfg.Scorer.HistoryBars,
		TrendThresholdPct:   cfg.Scorer.TrendThresholdPct,
		MaxConsecutiveSkips: 2,  // one malformed event stays under it
		MaxPriceFailures:    10, // sweep misses land here instead
	})

	result, err := d.RunReplay(context.Background())
	if err != nil {
		t.Fatalf("sweep misses must not trip the event skip budget: %v", err)
	}
	if result.PositionsOpened != 2 || result.ForcedClosed != 2 {
		t.Fatalf("positions: %+v", result)
	}
	// Two misses at event c's sweep, two more at the final sweep.
	if result.Skipped[SkipNoSweepPrice] != 4 {
		t.Fatalf("sweep skips: want 4, got %v", result.Skipped)
	}
	if result.Skipped[SkipBadEvent] != 1 {
		t.Fatalf("bad event skips: want 1, got %v", result.Skipped)
	}
}

type endOfStreamSource struct{}

func (endOfStreamSource) Next(context.Context) (domain.MarketEvent, error) {
	return domain.MarketEvent{}, feed.ErrEndOfStream
}

func TestRunLive_FinishesCleanlyOnStreamEnd(t *testing.T) {
	var cfg config.Root
	cfg.Mode = "paper"
	cfg.ApplyDefaults()

	oracle := price.NewHistoryOracle(nil)
	pf := portfolio.New(cfg.StartingCapital, cfg.Risk.DailyLossLimitPct, time.UTC)
	ledger := portfolio.NewLedger(pf, cfg.Exits)
	gate := risk.NewGate(cfg.Risk, pf, ledger, nil)
	scorer := signal.NewScorer(cfg.Scorer, time.UTC, signal.NewLexiconSentiment(), oracle)

	d := NewDriver(endOfStreamSource{}, oracle, scorer, gate, ledger, pf, nil, feed.RealClock{}, Options{
		SweepInterval: time.Hour, // never fires within the test
	})
	result, err := d.RunLive(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.EventsProcessed != 0 || result.FinalValue != cfg.StartingCapital {
		t.Fatalf("clean shutdown result: %+v", result)
	}
}
