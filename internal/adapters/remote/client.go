// Package remote provides the planner's remote item store: an HTTP client
// for a running coachcal server and an in-process adapter over SQLite.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coachcal/internal/adapters/http/perf"
	"coachcal/internal/domain/calendar"
)

// DefaultTimeout bounds every remote call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is returned when the server answers with a non-success code.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Code, e.Message)
}

// NotFound reports whether the server did not know the item.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

// ListResponse is the body of a list call.
type ListResponse struct {
	Items []calendar.Item `json:"items"`
}

// Client talks JSON over HTTP to the coachcal API.
type Client struct {
	baseURL   string
	http      *http.Client
	collector *perf.Collector
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithCollector records every call's latency as a remote perf entry.
func WithCollector(pc *perf.Collector) ClientOption {
	return func(c *Client) { c.collector = pc }
}

// NewClient creates a client for the server at baseURL.
// PRE: baseURL is an absolute http(s) URL
// POST: client ready; calls time out after DefaultTimeout unless overridden
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListItems implements planner.Remote.
func (c *Client) ListItems(ctx context.Context, q calendar.Query) ([]calendar.Item, error) {
	path := fmt.Sprintf("/api/clients/%s/items?%s", url.PathEscape(q.ClientID), url.Values{
		"start": {q.Range.Start},
		"end":   {q.Range.End},
	}.Encode())
	var out ListResponse
	if err := c.do(ctx, "list_items", http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// InsertItem implements planner.Remote. The returned item carries the
// server-assigned id.
func (c *Client) InsertItem(ctx context.Context, it calendar.Item) (calendar.Item, error) {
	path := fmt.Sprintf("/api/clients/%s/items", url.PathEscape(it.ClientID))
	var out calendar.Item
	if err := c.do(ctx, "insert_item", http.MethodPost, path, it, http.StatusCreated, &out); err != nil {
		return calendar.Item{}, err
	}
	return out, nil
}

// UpdateItem implements planner.Remote.
func (c *Client) UpdateItem(ctx context.Context, id string, p calendar.Patch) (calendar.Item, error) {
	var out calendar.Item
	if err := c.do(ctx, "update_item", http.MethodPatch, "/api/items/"+url.PathEscape(id), p, http.StatusOK, &out); err != nil {
		return calendar.Item{}, err
	}
	return out, nil
}

// DeleteItem implements planner.Remote.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, "delete_item", http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// RepeatItem asks the server to copy an item along a recurrence rule.
func (c *Client) RepeatItem(ctx context.Context, clientID, templateID, rule string) ([]calendar.Item, error) {
	body := map[string]string{"template_id": templateID, "rule": rule}
	var out ListResponse
	path := fmt.Sprintf("/api/clients/%s/items/repeat", url.PathEscape(clientID))
	if err := c.do(ctx, "repeat_item", http.MethodPost, path, body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, want int, out any) error {
	start := time.Now()
	code, err := c.roundTrip(ctx, method, path, body, want, out)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	if c.collector != nil {
		c.collector.Record(perf.Entry{Kind: perf.KindRemote, Path: op, StatusCode: code, DurationMs: elapsed, Timestamp: start})
	}
	if err != nil {
		slog.Debug("remote_call_failed", "op", op, "status", code, "duration_ms", elapsed, "error", err)
		return err
	}
	slog.Debug("remote_call", "op", op, "status", code, "duration_ms", elapsed)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, want int, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	// The server exempts JSON API calls from form CSRF checks, bodyless DELETE included.
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{
			Op:      strings.ToLower(method) + " " + path,
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.NotFound()
}
