// Package signal turns one MarketEvent into one Score through a fixed-order
// pipeline. Each stage either rejects (pipeline ends, no position possible)
// or multiplies an odds factor onto the running confidence. Odds
// multiplication is the numerical contract: additive stacking of boosts is
// disallowed because unbounded sums misrepresent certainty past 1.0.
package signal

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rudirid/announcetrader/internal/config"
	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/observ"
	"github.com/rudirid/announcetrader/internal/price"
)

// Stage names, in pipeline order.
const (
	StageFreshness   = "freshness"
	StageMateriality = "materiality"
	StageTimeOfDay   = "time_of_day"
	StageSentiment   = "sentiment"
	StageTechnical   = "technical"
	StageContrarian  = "contrarian"
)

// Rejection records a terminated pipeline: which stage vetoed, why, and the
// factors accumulated before the veto (kept for threshold tuning).
type Rejection struct {
	EventID string                     `json:"event_id"`
	Ticker  string                     `json:"ticker"`
	Stage   string                     `json:"stage"`
	Reason  domain.RejectReason        `json:"reason"`
	Stages  []domain.StageContribution `json:"stages,omitempty"`
}

// Scorer runs the pipeline. Pure relative to its inputs: the same event,
// history, and clock always yield the same score.
type Scorer struct {
	cfg       config.Scorer
	loc       *time.Location
	sentiment SentimentProvider
	history   price.HistoryProvider
}

func NewScorer(cfg config.Scorer, loc *time.Location, sentiment SentimentProvider, history price.HistoryProvider) *Scorer {
	if loc == nil {
		loc = time.UTC
	}
	return &Scorer{cfg: cfg, loc: loc, sentiment: sentiment, history: history}
}

// Score evaluates one event at the given time ("now" is detected_at in
// replay, wall clock in live). Exactly one of score/rejection is non-nil on
// a nil error.
func (s *Scorer) Score(ctx context.Context, ev domain.MarketEvent, now time.Time) (*domain.Score, *Rejection, error) {
	var contribs []domain.StageContribution
	add := func(stage string, factor float64) {
		contribs = append(contribs, domain.StageContribution{Stage: stage, OddsFactor: factor})
	}
	reject := func(stage string, reason domain.RejectReason) (*domain.Score, *Rejection, error) {
		observ.IncCounter("scorer_rejections_total", map[string]string{"stage": stage, "reason": string(reason)})
		return nil, &Rejection{EventID: ev.ID, Ticker: ev.Ticker, Stage: stage, Reason: reason, Stages: contribs}, nil
	}

	// 1. Freshness (live only; disabled in replay configurations that
	// intentionally evaluate next-period entries).
	if s.enabled(s.cfg.Stages.FreshnessEnabled) {
		staleness := ev.Staleness()
		ceiling := time.Duration(s.cfg.StalenessCeilingMins) * time.Minute
		if staleness > ceiling {
			return reject(StageFreshness, domain.RejectStaleEvent)
		}
		if staleness <= time.Duration(s.cfg.VeryFreshMins)*time.Minute {
			add(StageFreshness, s.cfg.FreshBoost)
		} else if staleness > ceiling/2 {
			add(StageFreshness, s.cfg.StalePenalty)
		} else {
			add(StageFreshness, 1.0)
		}
	}

	// 2. Materiality.
	mat := s.materiality(ev)
	if mat < s.cfg.MaterialityFloor {
		return reject(StageMateriality, domain.RejectLowMateriality)
	}
	add(StageMateriality, 0.85+0.5*mat)

	// 3. Time of day (live only).
	if s.enabled(s.cfg.Stages.TimeOfDayEnabled) {
		local := now.In(s.loc)
		if !within(local, s.cfg.WindowOpen, s.cfg.WindowClose) {
			return reject(StageTimeOfDay, domain.RejectOutsideWindow)
		}
		if within(local, s.cfg.OptimalOpen, s.cfg.OptimalClose) {
			add(StageTimeOfDay, s.cfg.OptimalBoost)
		} else {
			add(StageTimeOfDay, 1.0)
		}
	}

	// 4. Sentiment seeds the base odds.
	direction, raw, sentConf := s.sentiment.Sentiment(ev.Headline, ev.BodyExcerpt)
	if math.Abs(raw) < s.cfg.NeutralityThreshold || direction == domain.Neutral {
		return reject(StageSentiment, domain.RejectNeutralSentiment)
	}
	acc := domain.NewOddsAccumulator(sentConf)
	for _, c := range contribs {
		acc.ApplyFactor(c.OddsFactor)
	}

	// 5. Technical alignment. A soft modifier on purpose: treating
	// disagreement as a hard filter discards net-positive trades.
	trend, err := TrendAt(ctx, s.history, ev.Ticker, now, s.cfg.HistoryBars, s.cfg.TrendThresholdPct)
	if err != nil {
		return nil, nil, fmt.Errorf("technical stage %s: %w", ev.Ticker, err)
	}
	switch {
	case trend.Agrees(direction):
		add(StageTechnical, s.cfg.AlignedBoost)
		acc.ApplyFactor(s.cfg.AlignedBoost)
	case trend.Conflicts(direction):
		add(StageTechnical, s.cfg.ConflictPenalty)
		acc.ApplyFactor(s.cfg.ConflictPenalty)
	default:
		add(StageTechnical, 1.0)
	}

	// 6. Contrarian fade: extreme sentiment into an already-sharp move the
	// same way is crowding, not information.
	if math.Abs(raw) >= s.cfg.ExtremeSentiment {
		move := RecentMove(ctx, s.history, ev.Ticker, now, s.cfg.HistoryBars)
		crowded := (direction == domain.Long && move >= s.cfg.SharpMovePct) ||
			(direction == domain.Short && move <= -s.cfg.SharpMovePct)
		if crowded {
			add(StageContrarian, s.cfg.ContrarianFade)
			acc.ApplyFactor(s.cfg.ContrarianFade)
		}
	}

	score := &domain.Score{
		EventID:             ev.ID,
		Ticker:              ev.Ticker,
		Direction:           direction,
		RawSentiment:        raw,
		SentimentConfidence: sentConf,
		Confidence:          acc.Confidence(),
		Stages:              contribs,
		ScoredAt:            now,
	}
	observ.IncCounter("scorer_scores_total", nil)
	return score, nil, nil
}

// materiality combines the category weight, keyword hits, and the official
// price-sensitive flag into [0,1]. An absent flag is "no boost", never a
// rejection; only the floor rejects.
func (s *Scorer) materiality(ev domain.MarketEvent) float64 {
	score := s.cfg.CategoryWeights[strings.ToLower(ev.Category)]
	text := strings.ToLower(ev.Headline)
	for _, kw := range s.cfg.MaterialKeywords {
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}
	if ev.PriceSensitive != nil && *ev.PriceSensitive {
		score += 0.2
	}
	return math.Min(score, 1.0)
}

func (s *Scorer) enabled(flag *bool) bool { return flag != nil && *flag }

// within reports whether t's local clock time falls in [open, close].
// Bounds are "15:04" strings validated at config load.
func within(t time.Time, open, close string) bool {
	o, _ := time.Parse("15:04", open)
	c, _ := time.Parse("15:04", close)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= o.Hour()*60+o.Minute() && minutes <= c.Hour()*60+c.Minute()
}
