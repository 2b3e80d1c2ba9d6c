package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rudirid/announcetrader/internal/domain"
)

// HTTPFetch builds a FetchFunc polling a JSON disclosure endpoint:
// GET <base>?since=<RFC3339> returning {"events": [...]}. Scraper-grade
// retry and parsing complexity stays behind the endpoint; this adapter only
// decodes and classifies.
func HTTPFetch(base string, client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, since time.Time) ([]domain.MarketEvent, error) {
		u := fmt.Sprintf("%s?since=%s", base, url.QueryEscape(since.UTC().Format(time.RFC3339)))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("feed endpoint: status %d", resp.StatusCode)
		}
		var body struct {
			Events []domain.MarketEvent `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode feed response: %w", err)
		}
		return body.Events, nil
	}
}
