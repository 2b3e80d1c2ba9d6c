package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetch builds a FetchFunc against a JSON quote endpoint:
// GET <base>?ticker=<T> returning {"ticker","price","timestamp"}.
func HTTPFetch(base string, client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, ticker string) (Quote, error) {
		u := fmt.Sprintf("%s?ticker=%s", base, url.QueryEscape(ticker))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Quote{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return Quote{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
		}
		if resp.StatusCode != http.StatusOK {
			return Quote{}, fmt.Errorf("quote endpoint: status %d", resp.StatusCode)
		}
		var q Quote
		if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
			return Quote{}, fmt.Errorf("decode quote: %w", err)
		}
		if q.Price <= 0 {
			return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
		}
		return q, nil
	}
}
