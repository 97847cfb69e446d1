package bizradar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bizwatch/bizrelay/internal/relay"
)

// Client talks to the bizradar synchronous API: alert detail lookups during
// normalization and the subject check / monitoring lifecycle calls.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// AlertDetail is the expanded form of a monitoring alert.
type AlertDetail struct {
	SubjectURN        string   `json:"subject_urn"`
	FlaggedCategories []string `json:"flagged_categories"`
}

// FetchAlert follows the detail link carried in a monitoring-alert webhook.
// link may be absolute or relative to the configured base URL.
func (c *Client) FetchAlert(ctx context.Context, link string) (*AlertDetail, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse alert link: %w", err)
	}
	if !u.IsAbs() {
		link = c.baseURL + "/" + strings.TrimLeft(link, "/")
	}

	var detail AlertDetail
	if err := c.do(ctx, http.MethodGet, link, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) CheckSubject(ctx context.Context, payload json.RawMessage) (*relay.CheckResult, error) {
	var out struct {
		Matched bool            `json:"matched"`
		Score   float64         `json:"score"`
		Details json.RawMessage `json:"details"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/subjects/check", payload, &out); err != nil {
		return nil, err
	}
	return &relay.CheckResult{Matched: out.Matched, Score: out.Score, Details: out.Details}, nil
}

func (c *Client) StartMonitoring(ctx context.Context, subjectRef string) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/v1/monitoring/"+url.PathEscape(subjectRef), nil, nil)
}

func (c *Client) StopMonitoring(ctx context.Context, subjectRef string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/v1/monitoring/"+url.PathEscape(subjectRef), nil, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bizradar api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bizradar api: %s %s returned %d: %s", method, rawURL, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
