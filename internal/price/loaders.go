package price

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// LoadQuotesDB reads the historical price series from sqlite.
func LoadQuotesDB(path string) ([]Quote, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT ticker, price, timestamp FROM quotes ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		var q Quote
		var ts string
		if err := rows.Scan(&q.Ticker, &q.Price, &ts); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		if q.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("quote %s timestamp %q: %w", q.Ticker, ts, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// LoadQuotesJSONL reads one quote per line, the fixture format.
func LoadQuotesJSONL(path string) ([]Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Quote
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var q Quote
		if err := json.Unmarshal(sc.Bytes(), &q); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, q)
	}
	return out, sc.Err()
}
