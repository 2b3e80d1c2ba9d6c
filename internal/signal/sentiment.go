package signal

import (
	"math"
	"strings"

	"github.com/rudirid/announcetrader/internal/domain"
)

// SentimentProvider turns disclosure text into a directional read. A single
// function contract so keyword and model-backed scorers are interchangeable;
// the pipeline has no opinion on which produced the numbers.
//
// raw is in [-1,1]; confidence in [0,1].
type SentimentProvider interface {
	Sentiment(headline, body string) (direction domain.Direction, raw float64, confidence float64)
}

// LexiconSentiment is the default keyword scorer. Deterministic, so replay
// runs are reproducible.
type LexiconSentiment struct {
	positive map[string]float64
	negative map[string]float64
}

func NewLexiconSentiment() *LexiconSentiment {
	return &LexiconSentiment{
		positive: map[string]float64{
			"record": 1.0, "upgrade": 1.0, "beat": 0.9, "exceeds": 0.9,
			"growth": 0.8, "profit": 0.7, "awarded": 0.8, "contract": 0.6,
			"approval": 0.8, "breakthrough": 1.0, "strong": 0.6, "dividend": 0.5,
			"expansion": 0.6, "successful": 0.7,
		},
		negative: map[string]float64{
			"downgrade": 1.0, "loss": 0.8, "miss": 0.9, "misses": 0.9,
			"impairment": 0.9, "writedown": 0.9, "recall": 0.8, "lawsuit": 0.8,
			"investigation": 0.8, "resign": 0.6, "delay": 0.6, "suspension": 0.9,
			"downturn": 0.7, "weak": 0.6,
		},
	}
}

// Sentiment scores text by weighted keyword hits. raw saturates via tanh so
// pile-on headlines cannot escape [-1,1]; confidence grows with evidence.
func (l *LexiconSentiment) Sentiment(headline, body string) (domain.Direction, float64, float64) {
	words := strings.Fields(strings.ToLower(headline + " " + body))
	var sum float64
	var hits int
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()'\"")
		if v, ok := l.positive[w]; ok {
			sum += v
			hits++
		}
		if v, ok := l.negative[w]; ok {
			sum -= v
			hits++
		}
	}
	if hits == 0 {
		return domain.Neutral, 0, 0.5
	}
	raw := math.Tanh(sum / 2)
	confidence := 0.5 + 0.4*math.Min(1, float64(hits)/4)
	switch {
	case raw > 0:
		return domain.Long, raw, confidence
	case raw < 0:
		return domain.Short, raw, confidence
	default:
		return domain.Neutral, 0, confidence
	}
}
