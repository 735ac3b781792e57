// Package gcpapi provides a rate-limited repository client over provider
// REST APIs. Inventory crawls go through it so a misbehaving crawl cannot
// exhaust API quota: calls are throttled to quota_max_calls per quota_period,
// and paged list results are flattened for callers.
package gcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPageSize caps results fetched per page for paged API calls.
const DefaultPageSize = 100

// ExecutionError wraps a failed API call with the resource being queried.
type ExecutionError struct {
	Resource string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("api execution error for %q: %v", e.Resource, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Repository is a client for one API base endpoint.
type Repository struct {
	base     *url.URL
	client   *http.Client
	limiter  *rate.Limiter
	pageSize int
	token    string
}

// Option configures a Repository.
type Option func(*Repository)

// WithQuota enables the rate limiter: maxCalls requests per period. A
// maxCalls of zero leaves the limiter disabled.
func WithQuota(maxCalls int, period time.Duration) Option {
	return func(r *Repository) {
		if maxCalls <= 0 {
			r.limiter = nil
			return
		}
		if period <= 0 {
			period = 100 * time.Second
		}
		r.limiter = rate.NewLimiter(rate.Limit(float64(maxCalls)/period.Seconds()), maxCalls)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Repository) { r.client = c }
}

// WithPageSize overrides the per-page result cap.
func WithPageSize(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithCredentialsFile loads a bearer token from path. Missing or empty files
// leave the repository unauthenticated, which suits local test endpoints.
func WithCredentialsFile(path string) Option {
	return func(r *Repository) {
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		r.token = strings.TrimSpace(string(data))
	}
}

// NewRepository creates a repository client for baseURL.
func NewRepository(baseURL string, opts ...Option) (*Repository, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	r := &Repository{
		base:     base,
		client:   &http.Client{Timeout: 30 * time.Second},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// List fetches all pages of a collection and flattens the named items field
// into a single slice. Pagination follows the pageToken/nextPageToken
// convention.
func (r *Repository) List(ctx context.Context, path string, params url.Values, itemsField string) ([]json.RawMessage, error) {
	var results []json.RawMessage
	pageToken := ""

	for {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("pageSize", strconv.Itoa(r.pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		body, err := r.execute(ctx, path, q)
		if err != nil {
			return nil, err
		}

		var page map[string]json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &ExecutionError{Resource: path, Err: fmt.Errorf("decode page: %w", err)}
		}

		if raw, ok := page[itemsField]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, &ExecutionError{Resource: path, Err: fmt.Errorf("decode %s field: %w", itemsField, err)}
			}
			results = append(results, items...)
		}

		var next string
		if raw, ok := page["nextPageToken"]; ok {
			if err := json.Unmarshal(raw, &next); err != nil {
				return nil, &ExecutionError{Resource: path, Err: fmt.Errorf("decode nextPageToken: %w", err)}
			}
		}
		if next == "" {
			return results, nil
		}
		pageToken = next
	}
}

// Get fetches a single resource.
func (r *Repository) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return r.execute(ctx, path, params)
}

func (r *Repository) execute(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &ExecutionError{Resource: path, Err: err}
		}
	}

	u := *r.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &ExecutionError{Resource: path, Err: err}
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ExecutionError{Resource: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExecutionError{Resource: path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ExecutionError{
			Resource: path,
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	return json.RawMessage(body), nil
}
