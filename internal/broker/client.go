package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FillSource returns the raw fills executed for one brokerage account inside
// a time window. Implementations own authentication and pagination and may
// return fills in any order; ordering is re-established by reconciliation.
type FillSource interface {
	FetchFills(ctx context.Context, accountID string, start, end time.Time) ([]RawFill, error)
}

const (
	defaultPageSize    = 200
	defaultHTTPTimeout = 30 * time.Second
	maxPages           = 500
)

// Client fetches fills from a broker's REST API. A Client is cheap and
// short-lived: the orchestrator constructs one per sync run from the
// connection's credentials, so no auth state is ever shared between runs.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a fill-source client for one broker connection.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchFills pages through the broker's fill history endpoint for the window.
func (c *Client) FetchFills(ctx context.Context, accountID string, start, end time.Time) ([]RawFill, error) {
	var fills []RawFill

	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("account_id", accountID)
		q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(defaultPageSize))

		var response struct {
			Fills      []RawFill `json:"fills"`
			Page       int       `json:"page"`
			TotalPages int       `json:"total_pages"`
		}
		if err := c.get(ctx, "/api/v1/fills?"+q.Encode(), &response); err != nil {
			return nil, fmt.Errorf("failed to fetch fills page %d: %w", page, err)
		}

		fills = append(fills, response.Fills...)

		if response.TotalPages == 0 || page >= response.TotalPages || len(response.Fills) == 0 {
			break
		}
	}

	return fills, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
