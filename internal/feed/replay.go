package feed

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rudirid/announcetrader/internal/domain"
)

// ReplaySource iterates a historical disclosure table. detected_at is
// synthesized as published_at plus a configurable detection lag, emulating
// the latency a live scraper would add.
type ReplaySource struct {
	events []domain.MarketEvent
	lag    time.Duration
	pos    int
	last   time.Time
}

// NewReplaySource sorts events by published_at and applies the detection
// lag. from/to bound the run by published_at; zero values mean unbounded.
func NewReplaySource(events []domain.MarketEvent, lag time.Duration, from, to time.Time) *ReplaySource {
	var kept []domain.MarketEvent
	for _, ev := range events {
		if !from.IsZero() && ev.PublishedAt.Before(from) {
			continue
		}
		if !to.IsZero() && ev.PublishedAt.After(to) {
			continue
		}
		ev.DetectedAt = ev.PublishedAt.Add(lag)
		kept = append(kept, ev)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].DetectedAt.Before(kept[j].DetectedAt)
	})
	return &ReplaySource{events: kept, lag: lag}
}

// Next returns the next event. Ordering is asserted even though the
// constructor sorts: a regression here means the source was mutated and the
// run's results cannot be trusted.
func (s *ReplaySource) Next(_ context.Context) (domain.MarketEvent, error) {
	if s.pos >= len(s.events) {
		return domain.MarketEvent{}, ErrEndOfStream
	}
	ev := s.events[s.pos]
	s.pos++
	if ev.DetectedAt.Before(s.last) {
		return domain.MarketEvent{}, fmt.Errorf("%s at %s: %w", ev.ID, ev.DetectedAt.Format(time.RFC3339), ErrOutOfOrder)
	}
	s.last = ev.DetectedAt
	return ev, nil
}

// Remaining reports how many events have not yet been consumed.
func (s *ReplaySource) Remaining() int { return len(s.events) - s.pos }

// LoadEventsDB reads the historical disclosure table from sqlite.
func LoadEventsDB(path string) ([]domain.MarketEvent, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT id, ticker, headline, COALESCE(body_excerpt, ''), category,
		       published_at, COALESCE(price_sensitive, -1)
		FROM events ORDER BY published_at`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketEvent
	for rows.Next() {
		var ev domain.MarketEvent
		var published string
		var sensitive int
		if err := rows.Scan(&ev.ID, &ev.Ticker, &ev.Headline, &ev.BodyExcerpt,
			&ev.Category, &published, &sensitive); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.PublishedAt, err = time.Parse(time.RFC3339, published); err != nil {
			return nil, fmt.Errorf("event %s published_at %q: %w", ev.ID, published, err)
		}
		if sensitive >= 0 {
			v := sensitive != 0
			ev.PriceSensitive = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LoadEventsJSONL reads one event per line, the fixture format used in
// tests and small replays.
func LoadEventsJSONL(path string) ([]domain.MarketEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.MarketEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev domain.MarketEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
