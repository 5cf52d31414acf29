// Package client is a small PostgREST/Supabase client covering the table
// reads and writes the data-access core performs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CodeNoRows is the PostgREST error code for a single-object request that
// matched zero rows.
const CodeNoRows = "PGRST116"

// ErrNotFound matches an *APIError carrying CodeNoRows.
var ErrNotFound = errors.New("no rows returned")

// Client is a Supabase REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKey returns the key sent with every request.
func (c *Client) APIKey() string {
	return c.apiKey
}

// =============================================================================
// Query Builder
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
		params: url.Values{},
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client *Client
	table  string
	params url.Values
	single bool
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.params.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Cs adds an array "contains" filter: the column must contain every value.
func (q *QueryBuilder) Cs(column string, values ...string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	q.params.Add(column, "cs.{"+strings.Join(quoted, ",")+"}")
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	if existing := q.params.Get("order"); existing != "" {
		q.params.Set("order", existing+","+column+"."+dir)
	} else {
		q.params.Set("order", column+"."+dir)
	}
	return q
}

// Limit sets the LIMIT. Non-positive values are ignored.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	if n > 0 {
		q.params.Set("limit", strconv.Itoa(n))
	}
	return q
}

// Single expects exactly one row. Zero rows yields an error matching ErrNotFound.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Query returns the encoded query string. Used in logs and tests.
func (q *QueryBuilder) Query() string {
	return q.params.Encode()
}

// Execute executes a SELECT query and fails on non-2xx responses.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := q.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req)
}

// Insert inserts rows and returns the stored representation.
func (q *QueryBuilder) Insert(ctx context.Context, data any) (*Response, error) {
	req, err := q.newRequest(ctx, http.MethodPost, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

// Update patches the rows matched by the filters.
func (q *QueryBuilder) Update(ctx context.Context, data any) (*Response, error) {
	req, err := q.newRequest(ctx, http.MethodPatch, data)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

func (q *QueryBuilder) newRequest(ctx context.Context, method string, data any) (*http.Request, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(q.params) > 0 {
		reqURL += "?" + q.params.Encode()
	}

	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a successful API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("supabase error %s: %s", e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("supabase error: %s", e.Message)
	default:
		return fmt.Sprintf("supabase error: status %d", e.StatusCode)
	}
}

// Is reports whether target is ErrNotFound and the error is a zero-row result.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeNoRows
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			var alt struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(body, &alt) == nil {
				apiErr.Message = alt.Error
			}
		}
		return nil, apiErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
