package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// All *Pct fields are fractions of 1.0 (0.02 = 2%).

// Risk holds the immutable risk snapshot for one run. Changing any value
// requires a new run, which keeps backtests reproducible.
type Risk struct {
	MaxRiskPerTradePct      float64 `yaml:"max_risk_per_trade_pct"`
	StopLossPct             float64 `yaml:"stop_loss_pct"`
	MaxPositionsPerSector   int     `yaml:"max_positions_per_sector"`
	DailyLossLimitPct       float64 `yaml:"daily_loss_limit_pct"`
	MinConfidence           float64 `yaml:"min_confidence"`
	MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct"`
}

// Stages toggles individual scoring stages. Pointers distinguish "unset"
// from "explicitly off" so mode presets only fill gaps: a config file always
// wins over the replay/paper default.
type Stages struct {
	FreshnessEnabled *bool `yaml:"freshness_enabled"`
	TimeOfDayEnabled *bool `yaml:"time_of_day_enabled"`
}

// Scorer configures the signal pipeline.
type Scorer struct {
	Stages Stages `yaml:"stages"`

	StalenessCeilingMins int     `yaml:"staleness_ceiling_mins"`
	VeryFreshMins        int     `yaml:"very_fresh_mins"`
	FreshBoost           float64 `yaml:"fresh_boost"`   // odds factor for very fresh events
	StalePenalty         float64 `yaml:"stale_penalty"` // odds factor approaching the ceiling

	MaterialityFloor float64            `yaml:"materiality_floor"`
	CategoryWeights  map[string]float64 `yaml:"category_weights"`
	MaterialKeywords []string           `yaml:"material_keywords"`

	WindowOpen   string  `yaml:"window_open"`  // "10:00", exchange local time
	WindowClose  string  `yaml:"window_close"` // "15:30"
	OptimalOpen  string  `yaml:"optimal_open"`
	OptimalClose string  `yaml:"optimal_close"`
	OptimalBoost float64 `yaml:"optimal_boost"`

	NeutralityThreshold float64 `yaml:"neutrality_threshold"` // min |raw_sentiment|
	AlignedBoost        float64 `yaml:"aligned_boost"`
	ConflictPenalty     float64 `yaml:"conflict_penalty"`
	TrendThresholdPct   float64 `yaml:"trend_threshold_pct"`
	HistoryBars         int     `yaml:"history_bars"`

	ExtremeSentiment float64 `yaml:"extreme_sentiment"` // |raw| at or above is "extreme"
	SharpMovePct     float64 `yaml:"sharp_move_pct"`
	ContrarianFade   float64 `yaml:"contrarian_fade"`
}

// Exits configures the position exit rules, evaluated in fixed priority
// order by the ledger.
type Exits struct {
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	StopLossPct           float64 `yaml:"stop_loss_pct"` // defaults to risk.stop_loss_pct
	TrailingStopPct       float64 `yaml:"trailing_stop_pct"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
	MaxHoldHours          int     `yaml:"max_hold_hours"`
}

// Feed configures the live poller and both modes' failure handling.
type Feed struct {
	BaseURL                string `yaml:"base_url"`  // live disclosure endpoint
	QuoteURL               string `yaml:"quote_url"` // live quote endpoint
	PollIntervalSecs       int    `yaml:"poll_interval_secs"`
	TimeoutSecs            int    `yaml:"timeout_secs"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	RatePerMinute          int    `yaml:"rate_per_minute"`
	DetectionLagSecs       int    `yaml:"detection_lag_secs"` // replay simulated latency
}

// Replay bounds a historical run.
type Replay struct {
	DBPath      string `yaml:"db_path"`      // sqlite with events + quotes tables
	EventsJSONL string `yaml:"events_jsonl"` // fixture alternative to db_path
	QuotesJSONL string `yaml:"quotes_jsonl"`
	From        string `yaml:"from"` // RFC3339
	To          string `yaml:"to"`
}

type Root struct {
	Mode            string            `yaml:"mode"` // replay | paper
	StartingCapital float64           `yaml:"starting_capital"`
	Timezone        string            `yaml:"timezone"`
	Risk            Risk              `yaml:"risk"`
	Scorer          Scorer            `yaml:"scorer"`
	Exits           Exits             `yaml:"exits"`
	Feed            Feed              `yaml:"feed"`
	Replay          Replay            `yaml:"replay"`
	JournalPath     string            `yaml:"journal_path"`
	Sectors         map[string]string `yaml:"sectors"` // ticker -> sector
	LogPretty       bool              `yaml:"log_pretty"`
	MetricsAddr     string            `yaml:"metrics_addr"` // paper mode only; empty disables

	// Parsed fields, populated by Load.
	Location   *time.Location `yaml:"-"`
	ReplayFrom time.Time      `yaml:"-"`
	ReplayTo   time.Time      `yaml:"-"`
}

// Load reads, defaults, and validates a run configuration. Any validation
// failure is fatal before the first event is processed.
func Load(path string) (Root, error) {
	return LoadForMode(path, "")
}

// LoadForMode loads with the mode forced by a subcommand. The mode must be
// fixed before defaulting because stage-enablement presets depend on it.
func LoadForMode(path, mode string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if mode != "" {
		c.Mode = mode
	}
	c.ApplyDefaults()
	if err := c.finalize(); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// ApplyDefaults fills unset fields. Exported so tests and fixture-driven
// runs can build a Root in code the same way Load does.
func (c *Root) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "replay"
	}
	if c.StartingCapital == 0 {
		c.StartingCapital = 100000
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.JournalPath == "" {
		c.JournalPath = "data/journal.db"
	}

	r := &c.Risk
	if r.MaxRiskPerTradePct == 0 {
		r.MaxRiskPerTradePct = 0.01
	}
	if r.StopLossPct == 0 {
		r.StopLossPct = 0.05
	}
	if r.MaxPositionsPerSector == 0 {
		r.MaxPositionsPerSector = 3
	}
	if r.DailyLossLimitPct == 0 {
		r.DailyLossLimitPct = 0.03
	}
	if r.MinConfidence == 0 {
		r.MinConfidence = 0.55
	}
	if r.MaxPortfolioExposurePct == 0 {
		r.MaxPortfolioExposurePct = 0.8
	}

	s := &c.Scorer
	// Mode presets fill only unset stage toggles: freshness and time-of-day
	// are meaningless when replaying next-period entries, so replay defaults
	// them off; paper defaults them on.
	live := c.Mode == "paper"
	if s.Stages.FreshnessEnabled == nil {
		v := live
		s.Stages.FreshnessEnabled = &v
	}
	if s.Stages.TimeOfDayEnabled == nil {
		v := live
		s.Stages.TimeOfDayEnabled = &v
	}
	if s.StalenessCeilingMins == 0 {
		s.StalenessCeilingMins = 30
	}
	if s.VeryFreshMins == 0 {
		s.VeryFreshMins = 5
	}
	if s.FreshBoost == 0 {
		s.FreshBoost = 1.25
	}
	if s.StalePenalty == 0 {
		s.StalePenalty = 0.85
	}
	if s.MaterialityFloor == 0 {
		s.MaterialityFloor = 0.3
	}
	if len(s.CategoryWeights) == 0 {
		s.CategoryWeights = map[string]float64{
			"earnings":     0.9,
			"guidance":     0.85,
			"acquisition":  0.8,
			"contract":     0.7,
			"capital":      0.6,
			"management":   0.5,
			"presentation": 0.2,
			"admin":        0.1,
		}
	}
	if len(s.MaterialKeywords) == 0 {
		s.MaterialKeywords = []string{
			"upgrade", "downgrade", "record", "takeover", "acquisition",
			"guidance", "profit", "loss", "dividend", "halt", "breakthrough",
		}
	}
	if s.WindowOpen == "" {
		s.WindowOpen = "10:00"
	}
	if s.WindowClose == "" {
		s.WindowClose = "15:30"
	}
	if s.OptimalOpen == "" {
		s.OptimalOpen = "10:15"
	}
	if s.OptimalClose == "" {
		s.OptimalClose = "14:30"
	}
	if s.OptimalBoost == 0 {
		s.OptimalBoost = 1.08
	}
	if s.NeutralityThreshold == 0 {
		s.NeutralityThreshold = 0.15
	}
	if s.AlignedBoost == 0 {
		s.AlignedBoost = 1.05
	}
	if s.ConflictPenalty == 0 {
		s.ConflictPenalty = 0.92
	}
	if s.TrendThresholdPct == 0 {
		s.TrendThresholdPct = 0.01
	}
	if s.HistoryBars == 0 {
		s.HistoryBars = 10
	}
	if s.ExtremeSentiment == 0 {
		s.ExtremeSentiment = 0.85
	}
	if s.SharpMovePct == 0 {
		s.SharpMovePct = 0.05
	}
	if s.ContrarianFade == 0 {
		s.ContrarianFade = 0.85
	}

	e := &c.Exits
	if e.TakeProfitPct == 0 {
		e.TakeProfitPct = 0.10
	}
	if e.StopLossPct == 0 {
		e.StopLossPct = c.Risk.StopLossPct
	}
	if e.TrailingStopPct == 0 {
		e.TrailingStopPct = 0.04
	}
	if e.TrailingActivationPct == 0 {
		e.TrailingActivationPct = 0.05
	}
	if e.MaxHoldHours == 0 {
		e.MaxHoldHours = 48
	}

	f := &c.Feed
	if f.BaseURL == "" {
		f.BaseURL = "http://localhost:8091/disclosures"
	}
	if f.QuoteURL == "" {
		f.QuoteURL = "http://localhost:8091/quote"
	}
	if f.PollIntervalSecs == 0 {
		f.PollIntervalSecs = 30
	}
	if f.TimeoutSecs == 0 {
		f.TimeoutSecs = 10
	}
	if f.MaxConsecutiveFailures == 0 {
		f.MaxConsecutiveFailures = 5
	}
	if f.RatePerMinute == 0 {
		f.RatePerMinute = 30
	}
	if f.DetectionLagSecs == 0 {
		f.DetectionLagSecs = 60
	}
}

func (c *Root) finalize() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc

	if c.Replay.From != "" {
		if c.ReplayFrom, err = time.Parse(time.RFC3339, c.Replay.From); err != nil {
			return fmt.Errorf("replay.from: %w", err)
		}
	}
	if c.Replay.To != "" {
		if c.ReplayTo, err = time.Parse(time.RFC3339, c.Replay.To); err != nil {
			return fmt.Errorf("replay.to: %w", err)
		}
	}
	if !c.ReplayFrom.IsZero() && !c.ReplayTo.IsZero() && c.ReplayTo.Before(c.ReplayFrom) {
		return fmt.Errorf("replay.to %s before replay.from %s", c.Replay.To, c.Replay.From)
	}
	return nil
}

// Validate rejects ill-formed values. Fatal: a run never starts on a config
// it cannot honor.
func (c *Root) Validate() error {
	if c.Mode != "replay" && c.Mode != "paper" {
		return fmt.Errorf("mode must be replay or paper, got %q", c.Mode)
	}
	if c.StartingCapital <= 0 {
		return fmt.Errorf("starting_capital must be positive, got %v", c.StartingCapital)
	}

	checks := []struct {
		name string
		v    float64
	}{
		{"risk.max_risk_per_trade_pct", c.Risk.MaxRiskPerTradePct},
		{"risk.stop_loss_pct", c.Risk.StopLossPct},
		{"risk.daily_loss_limit_pct", c.Risk.DailyLossLimitPct},
		{"risk.max_portfolio_exposure_pct", c.Risk.MaxPortfolioExposurePct},
		{"exits.take_profit_pct", c.Exits.TakeProfitPct},
		{"exits.stop_loss_pct", c.Exits.StopLossPct},
		{"exits.trailing_stop_pct", c.Exits.TrailingStopPct},
	}
	for _, ch := range checks {
		if ch.v <= 0 || ch.v > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", ch.name, ch.v)
		}
	}
	if c.Risk.MinConfidence <= 0 || c.Risk.MinConfidence >= 1 {
		return fmt.Errorf("risk.min_confidence must be in (0,1), got %v", c.Risk.MinConfidence)
	}
	if c.Risk.MaxPositionsPerSector < 1 {
		return fmt.Errorf("risk.max_positions_per_sector must be >= 1, got %d", c.Risk.MaxPositionsPerSector)
	}
	if c.Exits.MaxHoldHours < 1 {
		return fmt.Errorf("exits.max_hold_hours must be >= 1, got %d", c.Exits.MaxHoldHours)
	}
	if c.Scorer.NeutralityThreshold < 0 || c.Scorer.NeutralityThreshold >= 1 {
		return fmt.Errorf("scorer.neutrality_threshold must be in [0,1), got %v", c.Scorer.NeutralityThreshold)
	}
	if c.Scorer.MaterialityFloor < 0 || c.Scorer.MaterialityFloor > 1 {
		return fmt.Errorf("scorer.materiality_floor must be in [0,1], got %v", c.Scorer.MaterialityFloor)
	}
	for _, w := range []string{c.Scorer.WindowOpen, c.Scorer.WindowClose, c.Scorer.OptimalOpen, c.Scorer.OptimalClose} {
		if _, err := time.Parse("15:04", w); err != nil {
			return fmt.Errorf("scorer trading window %q: %w", w, err)
		}
	}
	if c.Mode == "replay" && c.Replay.DBPath == "" && c.Replay.EventsJSONL == "" {
		return fmt.Errorf("replay mode requires replay.db_path or replay.events_jsonl")
	}
	return nil
}
