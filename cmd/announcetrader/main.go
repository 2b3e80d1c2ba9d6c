package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rudirid/announcetrader/internal/attribution"
	"github.com/rudirid/announcetrader/internal/config"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/feed"
	"github.com/rudirid/announcetrader/internal/journal"
	"github.com/rudirid/announcetrader/internal/observ"
	"github.com/rudirid/announcetrader/internal/portfolio"
	"github.com/rudirid/announcetrader/internal/price"
	"github.com/rudirid/announcetrader/internal/risk"
	"github.com/rudirid/announcetrader/internal/signal"
	"github.com/rudirid/announcetrader/internal/sim"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "announcetrader",
		Short:         "Disclosure-driven trading simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "run configuration file")

	var duration time.Duration
	paperCmd := &cobra.Command{
		Use:   "paper",
		Short: "Poll the live feed and paper-trade against it",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runPaper(cmd.Context(), duration) },
	}
	paperCmd.Flags().DurationVar(&duration, "duration", 4*time.Hour, "run horizon")

	root.AddCommand(
		&cobra.Command{
			Use:   "replay",
			Short: "Replay a historical disclosure table",
			RunE:  func(cmd *cobra.Command, _ []string) error { return runReplay(cmd.Context()) },
		},
		paperCmd,
		reportCmd(),
	)

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runReplay(ctx context.Context) error {
	cfg, err := config.LoadForMode(cfgPath, "replay")
	if err != nil {
		return err
	}
	observ.Init(cfg.LogPretty)

	events, quotes, err := loadHistorical(cfg)
	if err != nil {
		return err
	}
	source := feed.NewReplaySource(events,
		time.Duration(cfg.Feed.DetectionLagSecs)*time.Second, cfg.ReplayFrom, cfg.ReplayTo)
	oracle := price.NewHistoryOracle(quotes)

	driver, jrnl, err := buildDriver(cfg, source, oracle)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	result, runErr := driver.RunReplay(ctx)
	printResult(result)
	return runErr
}

func runPaper(ctx context.Context, duration time.Duration) error {
	cfg, err := config.LoadForMode(cfgPath, "paper")
	if err != nil {
		return err
	}
	observ.Init(cfg.LogPretty)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	clock := feed.RealClock{}
	source := feed.NewLiveSource(feed.HTTPFetch(cfg.Feed.BaseURL, nil), feed.LiveConfig{
		PollInterval:           time.Duration(cfg.Feed.PollIntervalSecs) * time.Second,
		Timeout:                time.Duration(cfg.Feed.TimeoutSecs) * time.Second,
		RatePerMinute:          cfg.Feed.RatePerMinute,
		MaxConsecutiveFailures: cfg.Feed.MaxConsecutiveFailures,
	}, clock)
	oracle := price.NewLiveOracle(price.HTTPFetch(cfg.Feed.QuoteURL, nil),
		cfg.Scorer.HistoryBars*5, time.Duration(cfg.Feed.TimeoutSecs)*time.Second)

	driver, jrnl, err := buildDriver(cfg, source, oracle)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	result, runErr := driver.RunLive(ctx, duration)
	printResult(result)
	return runErr
}

func reportCmd() *cobra.Command {
	var journalPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print attribution and skip accounting from a run journal",
		RunE:  func(*cobra.Command, []string) error { return runReport(journalPath) },
	}
	cmd.Flags().StringVar(&journalPath, "journal", "data/journal.db", "journal database to read")
	return cmd
}

func runReport(journalPath string) error {
	jrnl, err := journal.Open(journalPath)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	closed, err := jrnl.ClosedPositions()
	if err != nil {
		return err
	}
	samples := make([]attribution.Sample, 0, len(closed))
	for _, row := range closed {
		samples = append(samples, attribution.Sample{Confidence: row.Confidence, ReturnPct: row.ReturnPct})
	}
	skips, err := jrnl.SkipCounts()
	if err != nil {
		return err
	}
	rejections, err := jrnl.RejectionCounts()
	if err != nil {
		return err
	}

	out := struct {
		Attribution attribution.Report `json:"attribution"`
		Skips       map[string]int     `json:"skips"`
		Rejections  map[string]int     `json:"rejections"`
	}{attribution.Analyze(samples), skips, rejections}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func buildDriver(cfg config.Root, source feed.Source, prices sim.PriceSource) (*sim.Driver, *journal.Journal, error) {
	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	pf := portfolio.New(cfg.StartingCapital, cfg.Risk.DailyLossLimitPct, cfg.Location)
	ledger := portfolio.NewLedger(pf, cfg.Exits)
	gate := risk.NewGate(cfg.Risk, pf, ledger, cfg.Sectors)
	scorer := signal.NewScorer(cfg.Scorer, cfg.Location, signal.NewLexiconSentiment(), prices)

	driver := sim.NewDriver(source, prices, scorer, gate, ledger, pf, jrnl, feed.RealClock{}, sim.Options{
		SweepInterval:       time.Duration(cfg.Feed.PollIntervalSecs) * time.Second,
		MaxPriceFailures:    cfg.Feed.MaxConsecutiveFailures,
		TrendBars:           cfg.Scorer.HistoryBars,
		TrendThresholdPct:   cfg.Scorer.TrendThresholdPct,
		MaxConsecutiveSkips: cfg.Feed.MaxConsecutiveFailures * 4,
	})
	return driver, jrnl, nil
}

func loadHistorical(cfg config.Root) ([]domain.MarketEvent, []price.Quote, error) {
	var events []domain.MarketEvent
	var err error
	switch {
	case cfg.Replay.EventsJSONL != "":
		events, err = feed.LoadEventsJSONL(cfg.Replay.EventsJSONL)
	default:
		events, err = feed.LoadEventsDB(cfg.Replay.DBPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}

	var quotes []price.Quote
	switch {
	case cfg.Replay.QuotesJSONL != "":
		quotes, err = price.LoadQuotesJSONL(cfg.Replay.QuotesJSONL)
	case cfg.Replay.DBPath != "":
		quotes, err = price.LoadQuotesDB(cfg.Replay.DBPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load quotes: %w", err)
	}
	return events, quotes, nil
}

// serveMetrics exposes the in-process registry for a long-lived paper run.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		observ.Error("metrics_server_failed", err, map[string]any{"addr": addr})
	}
}

func printResult(r sim.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
}
