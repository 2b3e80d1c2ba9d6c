package domain

import "math"

// Confidence bounds. Final confidence never reaches degenerate certainty.
const (
	MinConfidence = 0.01
	MaxConfidence = 0.99
)

// OddsAccumulator combines a base probability with multiplicative odds
// factors. It stores log-odds internally so the [MinConfidence,MaxConfidence]
// bound holds by construction: no sequence of factors can push the converted
// probability past 1.0, which is the failure mode of additive stacking.
type OddsAccumulator struct {
	logOdds float64
}

// NewOddsAccumulator seeds the accumulator from a base probability. The seed
// is clamped into the confidence bounds so a provider returning exactly 0 or
// 1 cannot produce infinite odds.
func NewOddsAccumulator(base float64) *OddsAccumulator {
	p := clampConfidence(base)
	return &OddsAccumulator{logOdds: math.Log(p / (1 - p))}
}

// ApplyFactor multiplies the running odds by factor. Factors <= 0 are
// ignored; a stage that wants to veto rejects instead of zeroing the odds.
func (a *OddsAccumulator) ApplyFactor(factor float64) {
	if factor <= 0 {
		return
	}
	a.logOdds += math.Log(factor)
}

// Odds returns the accumulated odds ratio.
func (a *OddsAccumulator) Odds() float64 {
	return math.Exp(a.logOdds)
}

// Confidence converts the accumulated odds back to a probability,
// clamped to [MinConfidence, MaxConfidence].
func (a *OddsAccumulator) Confidence() float64 {
	odds := a.Odds()
	if math.IsInf(odds, 1) {
		return MaxConfidence
	}
	return clampConfidence(odds / (1 + odds))
}

func clampConfidence(p float64) float64 {
	if p < MinConfidence {
		return MinConfidence
	}
	if p > MaxConfidence {
		return MaxConfidence
	}
	return p
}
