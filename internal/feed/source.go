// Package feed produces the chronological stream of market events the
// simulation consumes. The load-bearing invariant: events arrive in
// non-decreasing detected_at order, which is what makes "no lookahead"
// mechanically checkable downstream.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rudirid/announcetrader/internal/domain"
)

// ErrEndOfStream signals a cleanly exhausted source.
var ErrEndOfStream = errors.New("feed: end of stream")

// ErrOutOfOrder means a source produced an event with detected_at earlier
// than its predecessor. Treated as a defect in the adapter, never skipped
// over silently.
var ErrOutOfOrder = errors.New("feed: event detected_at regressed")

// Source yields events one at a time in non-decreasing detected_at order.
type Source interface {
	Next(ctx context.Context) (domain.MarketEvent, error)
}

// Clock abstracts wall-clock reads so live components are testable with a
// fixed clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
