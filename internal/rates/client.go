package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client fetches a currency's rate table over HTTP. Each configured URL is a
// template with a single %s filled with the lowercase target currency code; the
// response is a JSON object keyed by lowercase target code, each holding a
// mapping of lowercase base codes to numeric rates. Primary and fallback
// sources share this shape.
type Client struct {
	HTTP        *http.Client
	PrimaryURL  string
	FallbackURL string
	Log         zerolog.Logger
}

// NewClient builds a client with a bounded per-request timeout. A timeout is
// treated the same as any other source failure: fall through to the next
// source.
func NewClient(primaryURL, fallbackURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		HTTP:        &http.Client{Timeout: timeout},
		PrimaryURL:  primaryURL,
		FallbackURL: fallbackURL,
		Log:         log,
	}
}

// Fetch returns the base-code -> rate mapping for target, trying the primary
// source first and the fallback second. It fails only when both sources fail.
func (c *Client) Fetch(ctx context.Context, target string) (map[string]decimal.Decimal, error) {
	target = strings.ToLower(strings.TrimSpace(target))

	table, primaryErr := c.fetchOne(ctx, c.PrimaryURL, target)
	if primaryErr == nil {
		return table, nil
	}
	c.Log.Warn().Err(primaryErr).Str("target", target).Msg("primary rate source failed, trying fallback")

	table, fallbackErr := c.fetchOne(ctx, c.FallbackURL, target)
	if fallbackErr == nil {
		return table, nil
	}
	return nil, fmt.Errorf("all rate sources failed: primary: %v; fallback: %w", primaryErr, fallbackErr)
}

func (c *Client) fetchOne(ctx context.Context, urlTemplate, target string) (map[string]decimal.Decimal, error) {
	if urlTemplate == "" {
		return nil, fmt.Errorf("no source configured")
	}
	url := fmt.Sprintf(urlTemplate, target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// The body carries extra keys (e.g. a date stamp) next to the rate table,
	// so decode loosely and pick out the target's object.
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	raw, ok := body[target]
	if !ok {
		return nil, fmt.Errorf("response missing %q table", target)
	}
	var table map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("malformed rate table: %w", err)
	}
	return table, nil
}
