package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rudirid/announcetrader/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func fastLiveConfig() LiveConfig {
	return LiveConfig{
		PollInterval:           time.Millisecond,
		RatePerMinute:          600000,
		MaxConsecutiveFailures: 2,
	}
}

func TestLiveSource_StampsDedupesAndClamps(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	batch := []domain.MarketEvent{
		{ID: "e1", Ticker: "BHP", PublishedAt: now.Add(-time.Minute)},
		{ID: "e1", Ticker: "BHP", PublishedAt: now.Add(-time.Minute)}, // duplicate
		{ID: "", Ticker: "CSL"}, // no identity, dropped
		{ID: "e2", Ticker: "WOW", PublishedAt: now.Add(time.Hour)}, // clock skewed source
	}
	fetch := func(context.Context, time.Time) ([]domain.MarketEvent, error) {
		return batch, nil
	}
	src := NewLiveSource(fetch, fastLiveConfig(), fixedClock{now})
	ctx := context.Background()

	ev1, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev1.ID != "e1" || !ev1.DetectedAt.Equal(now) {
		t.Fatalf("first event: got %s detected %s", ev1.ID, ev1.DetectedAt)
	}

	ev2, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev2.ID != "e2" {
		t.Fatalf("duplicate not collapsed: got %s", ev2.ID)
	}
	if !ev2.PublishedAt.Equal(ev2.DetectedAt) {
		t.Fatalf("future publication must be clamped to detection, got pub=%s det=%s",
			ev2.PublishedAt, ev2.DetectedAt)
	}
}

func TestLiveSource_EscalatesConsecutiveFailures(t *testing.T) {
	fetch := func(context.Context, time.Time) ([]domain.MarketEvent, error) {
		return nil, errors.New("provider down")
	}
	src := NewLiveSource(fetch, fastLiveConfig(), fixedClock{time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := src.Next(ctx)
	if err == nil {
		t.Fatal("want fatal error after consecutive failures, got nil")
	}
	if !strings.Contains(err.Error(), "consecutive fetch failures") {
		t.Fatalf("want escalation error, got %v", err)
	}
}

func TestLiveSource_RespectsCancellation(t *testing.T) {
	fetch := func(context.Context, time.Time) ([]domain.MarketEvent, error) {
		return nil, nil // healthy but empty feed
	}
	src := NewLiveSource(fetch, fastLiveConfig(), fixedClock{time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
