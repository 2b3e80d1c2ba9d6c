package domain

import "time"

// StageContribution records one multiplicative odds factor applied by a
// pipeline stage, in application order, for auditability.
type StageContribution struct {
	Stage      string  `json:"stage"`
	OddsFactor float64 `json:"odds_factor"`
}

// Score is the output of the scoring pipeline for one event. Created once,
// immutable, attached to at most one position.
type Score struct {
	EventID             string              `json:"event_id"`
	Ticker              string              `json:"ticker"`
	Direction           Direction           `json:"direction"`
	RawSentiment        float64             `json:"raw_sentiment"`        // [-1,1]
	SentimentConfidence float64             `json:"sentiment_confidence"` // [0,1]
	Confidence          float64             `json:"confidence"`           // [0.01,0.99], odds-combined
	Stages              []StageContribution `json:"stages"`
	ScoredAt            time.Time           `json:"scored_at"`
}
