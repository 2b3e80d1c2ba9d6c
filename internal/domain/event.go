package domain

import "time"

// Direction is the trade direction implied by a signal.
type Direction string

const (
	Long    Direction = "long"
	Short   Direction = "short"
	Neutral Direction = "neutral"
)

// Opposes reports whether d and other are opposite trade directions.
func (d Direction) Opposes(other Direction) bool {
	return (d == Long && other == Short) || (d == Short && other == Long)
}

// Trend classifies recent price action for technical alignment checks.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Agrees reports whether the trend points the same way as a trade direction.
func (t Trend) Agrees(d Direction) bool {
	return (t == TrendUp && d == Long) || (t == TrendDown && d == Short)
}

// Conflicts reports whether the trend points against a trade direction.
func (t Trend) Conflicts(d Direction) bool {
	return (t == TrendUp && d == Short) || (t == TrendDown && d == Long)
}

// MarketEvent is one corporate disclosure as seen by the system. Immutable
// once created: the feed creates it, the scorer consumes it exactly once.
type MarketEvent struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Headline    string    `json:"headline"`
	BodyExcerpt string    `json:"body_excerpt,omitempty"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	// DetectedAt is when the system became aware of the disclosure.
	// Invariant: DetectedAt >= PublishedAt.
	DetectedAt time.Time `json:"detected_at"`
	// PriceSensitive is the exchange's official materiality flag. nil when
	// the source did not assert either way.
	PriceSensitive *bool `json:"price_sensitive,omitempty"`
}

// Staleness is the lag between publication and detection.
func (e MarketEvent) Staleness() time.Duration {
	return e.DetectedAt.Sub(e.PublishedAt)
}
