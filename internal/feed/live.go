package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/observ"
)

// FetchFunc pulls disclosures published since the given time from an
// external provider. HTML parsing, retries, and backoff live behind this
// function; the poller only classifies outcomes.
type FetchFunc func(ctx context.Context, since time.Time) ([]domain.MarketEvent, error)

// LiveConfig bounds the poller's behavior.
type LiveConfig struct {
	PollInterval           time.Duration
	Timeout                time.Duration
	RatePerMinute          int
	MaxConsecutiveFailures int
}

// LiveSource polls a disclosure feed. detected_at is stamped with the wall
// clock at ingestion, events are deduplicated by ID, and delivery order is
// non-decreasing detected_at by construction (one poll cycle at a time).
//
// Transient fetch failures are absorbed here: the breaker opens after
// repeated failures, and only a run of MaxConsecutiveFailures consecutive
// errors escalates to a fatal stream error, so the loop never grinds on
// silently with no data.
type LiveSource struct {
	fetch   FetchFunc
	cfg     LiveConfig
	clock   Clock
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	queue    []domain.MarketEvent
	seen     map[string]bool
	since    time.Time
	failures int
}

func NewLiveSource(fetch FetchFunc, cfg LiveConfig, clock Clock) *LiveSource {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &LiveSource{
		fetch:   fetch,
		cfg:     cfg,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "disclosure-feed",
			MaxRequests: 1,
			Timeout:     cfg.PollInterval * 2,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
		seen:  make(map[string]bool),
		since: clock.Now(),
	}
}

// Next blocks until an event is available, the context is cancelled, or the
// consecutive-failure ceiling is hit.
func (s *LiveSource) Next(ctx context.Context) (domain.MarketEvent, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if err := s.poll(ctx); err != nil {
			return domain.MarketEvent{}, err
		}
		if len(s.queue) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return domain.MarketEvent{}, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *LiveSource) poll(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	fctx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	result, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(fctx, s.since)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.failures++
		observ.IncCounter("feed_fetch_errors_total", nil)
		observ.Warn("feed_fetch_failed", map[string]any{
			"consecutive": s.failures, "error": err.Error(),
		})
		if s.failures >= s.cfg.MaxConsecutiveFailures {
			return fmt.Errorf("feed: %d consecutive fetch failures: %w", s.failures, err)
		}
		return nil
	}
	s.failures = 0

	now := s.clock.Now()
	for _, ev := range result.([]domain.MarketEvent) {
		if ev.ID == "" || s.seen[ev.ID] {
			continue
		}
		s.seen[ev.ID] = true
		ev.DetectedAt = now
		if ev.PublishedAt.After(ev.DetectedAt) {
			// Source-asserted publication in the future of our clock;
			// treat publication as detection rather than invent lead time.
			ev.PublishedAt = ev.DetectedAt
		}
		s.queue = append(s.queue, ev)
		if ev.PublishedAt.After(s.since) {
			s.since = ev.PublishedAt
		}
		observ.IncCounter("feed_events_ingested_total", nil)
	}
	return nil
}
