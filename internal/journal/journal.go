// Package journal is the run's append-only log: scores, position opens and
// closes, risk-gate and scorer rejections, and skipped ticks. The schema is
// the stable contract the attribution engine and any external dashboard
// replay from.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rudirid/announcetrader/internal/domain"
	"github.com/rudirid/announcetrader/internal/portfolio"
)

type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database and applies the schema.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scores (
		event_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		direction TEXT NOT NULL,
		raw_sentiment REAL NOT NULL,
		sentiment_confidence REAL NOT NULL,
		confidence REAL NOT NULL,
		stages TEXT NOT NULL,
		scored_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scores_event ON scores(event_id);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		sector TEXT NOT NULL,
		direction TEXT NOT NULL,
		confidence REAL NOT NULL,
		entry_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		size REAL NOT NULL,
		capital_committed REAL NOT NULL,
		state TEXT NOT NULL,
		exit_price REAL,
		exit_time DATETIME,
		exit_reason TEXT,
		return_pct REAL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_state ON positions(state);

	CREATE TABLE IF NOT EXISTS rejections (
		event_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		stage TEXT NOT NULL,
		reason TEXT NOT NULL,
		stages TEXT,
		rejected_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS skips (
		reason TEXT NOT NULL,
		detail TEXT,
		skipped_at DATETIME NOT NULL
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) RecordScore(s *domain.Score) error {
	stages, _ := json.Marshal(s.Stages)
	_, err := j.db.Exec(`INSERT INTO scores
		(event_id, ticker, direction, raw_sentiment, sentiment_confidence, confidence, stages, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.EventID, s.Ticker, string(s.Direction), s.RawSentiment,
		s.SentimentConfidence, s.Confidence, string(stages), s.ScoredAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (j *Journal) RecordOpen(p *portfolio.Position) error {
	_, err := j.db.Exec(`INSERT INTO positions
		(id, event_id, ticker, sector, direction, confidence, entry_price, entry_time, size, capital_committed, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.Ticker, p.Sector, string(p.Direction), p.Confidence,
		p.EntryPrice, p.EntryTime.UTC().Format(time.RFC3339Nano), p.Size,
		p.CapitalCommitted, string(p.State))
	return err
}

func (j *Journal) RecordClose(p *portfolio.Position) error {
	_, err := j.db.Exec(`UPDATE positions SET
		state = ?, exit_price = ?, exit_time = ?, exit_reason = ?, return_pct = ?
		WHERE id = ?`,
		string(p.State), p.ExitPrice, p.ExitTime.UTC().Format(time.RFC3339Nano),
		string(p.ExitReason), p.ReturnPct(p.ExitPrice), p.ID)
	return err
}

func (j *Journal) RecordRejection(eventID, ticker, stage string, reason domain.RejectReason, stages []domain.StageContribution, at time.Time) error {
	var stagesJSON string
	if len(stages) > 0 {
		b, _ := json.Marshal(stages)
		stagesJSON = string(b)
	}
	_, err := j.db.Exec(`INSERT INTO rejections
		(event_id, ticker, stage, reason, stages, rejected_at) VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, ticker, stage, string(reason), stagesJSON, at.UTC().Format(time.RFC3339Nano))
	return err
}

func (j *Journal) RecordSkip(reason, detail string, at time.Time) error {
	_, err := j.db.Exec(`INSERT INTO skips (reason, detail, skipped_at) VALUES (?, ?, ?)`,
		reason, detail, at.UTC().Format(time.RFC3339Nano))
	return err
}

// ClosedRow is one closed position as replayed from the journal.
type ClosedRow struct {
	ID         string
	Ticker     string
	Confidence float64
	ReturnPct  float64
	ExitReason string
}

// ClosedPositions returns closed positions in exit order.
func (j *Journal) ClosedPositions() ([]ClosedRow, error) {
	rows, err := j.db.Query(`SELECT id, ticker, confidence, COALESCE(return_pct, 0), COALESCE(exit_reason, '')
		FROM positions WHERE state = 'closed' ORDER BY exit_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClosedRow
	for rows.Next() {
		var r ClosedRow
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Confidence, &r.ReturnPct, &r.ExitReason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SkipCounts aggregates skipped ticks by reason for the final report.
func (j *Journal) SkipCounts() (map[string]int, error) {
	rows, err := j.db.Query(`SELECT reason, COUNT(*) FROM skips GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

// RejectionCounts aggregates rejections by reason.
func (j *Journal) RejectionCounts() (map[string]int, error) {
	rows, err := j.db.Query(`SELECT reason, COUNT(*) FROM rejections GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}
