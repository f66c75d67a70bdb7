// Package pricefeed runs the scheduled price refresh against the Folio
// pipeline API: it lists refreshable securities, quotes them through a
// pricing.Source and posts the results back.
package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"folio/internal/pricing"
)

// PriceEntry is a single price submitted to the pipeline API.
type PriceEntry struct {
	SecurityID string          `json:"security_id"`
	Price      decimal.Decimal `json:"price"`
	Source     string          `json:"source,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type pipelineSecurity struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// Client talks to the pipeline endpoints with the shared API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a pipeline API client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// ListSecurities returns the securities whose prices are refreshed automatically.
func (c *Client) ListSecurities(ctx context.Context) ([]pricing.Security, error) {
	var result struct {
		Securities []pipelineSecurity `json:"securities"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/pipeline/securities", nil, &result); err != nil {
		return nil, err
	}

	out := make([]pricing.Security, len(result.Securities))
	for i, s := range result.Securities {
		out[i] = pricing.Security{ID: s.ID, Ticker: s.Ticker, Exchange: s.Exchange, Currency: s.Currency}
	}
	return out, nil
}

// RecordPrices submits prices and returns how many were stored.
func (c *Client) RecordPrices(ctx context.Context, prices []PriceEntry) (int, error) {
	body := struct {
		Prices []PriceEntry `json:"prices"`
	}{Prices: prices}

	var result struct {
		PricesRecorded int `json:"prices_recorded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/securities/prices", body, &result); err != nil {
		return 0, err
	}
	return result.PricesRecorded, nil
}

// ComputeSnapshots asks the API to record a value snapshot for every user.
func (c *Client) ComputeSnapshots(ctx context.Context, recordedAt time.Time) (int, error) {
	body := struct {
		RecordedAt time.Time `json:"recorded_at"`
	}{RecordedAt: recordedAt.UTC()}

	var result struct {
		SnapshotsRecorded int `json:"snapshots_recorded"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/snapshots", body, &result); err != nil {
		return 0, err
	}
	return result.SnapshotsRecorded, nil
}
