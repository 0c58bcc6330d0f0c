// Package apiclient talks to the flat-record employee API over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/search"
)

const requestIDHeader = "X-Request-ID"

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api status=%d: %s", e.Status, e.Message)
}

// Client implements the record source and updater the sync controller needs.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New parses baseURL, e.g. "http://localhost:8787/api".
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url: %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: u, httpClient: &http.Client{Timeout: timeout}}, nil
}

// ListEmployees accepts a bare JSON array or an {"employees": [...]}
// envelope.
func (c *Client) ListEmployees(ctx context.Context) ([]hierarchy.Employee, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/employees", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	var out []hierarchy.Employee
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var envelope repositionRequest
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("list employees: decode records: %w", err)
	}
	return envelope.Employees, nil
}

type setManagerRequest struct {
	ID           int64  `json:"id"`
	NewManagerID *int64 `json:"new_manager_id"`
}

func (c *Client) SetManager(ctx context.Context, id int64, managerID *int64) error {
	if err := c.doJSON(ctx, http.MethodPost, "/update-employee-manager", nil, setManagerRequest{ID: id, NewManagerID: managerID}, nil); err != nil {
		return fmt.Errorf("set manager of %d: %w", id, err)
	}
	return nil
}

type repositionRequest struct {
	Employees []hierarchy.Employee `json:"employees"`
}

func (c *Client) Reposition(ctx context.Context, records []hierarchy.Employee) error {
	if err := c.doJSON(ctx, http.MethodPost, "/employees/reposition", nil, repositionRequest{Employees: records}, nil); err != nil {
		return fmt.Errorf("reposition: %w", err)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, text string, limit int) (search.Response, error) {
	q := url.Values{}
	q.Set("q", text)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out search.Response
	if err := c.doJSON(ctx, http.MethodGet, "/search", q, nil, &out); err != nil {
		return search.Response{}, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

// Chart is a rendered org chart download.
type Chart struct {
	Data        []byte
	ContentType string
}

// ExportChart downloads the chart in the given format ("html" or "pdf").
func (c *Client) ExportChart(ctx context.Context, format, title string) (Chart, error) {
	query := url.Values{}
	query.Set("format", format)
	if title != "" {
		query.Set("title", title)
	}
	body, header, err := c.do(ctx, http.MethodGet, "/export", query, nil, "*/*")
	if err != nil {
		return Chart{}, err
	}
	return Chart{Data: body, ContentType: header.Get("Content-Type")}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, out any) error {
	respBody, _, err := c.do(ctx, method, path, query, reqBody, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("json unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody any, accept string) ([]byte, http.Header, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("json marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("http read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, nil, apiErr
	}
	return respBody, resp.Header, nil
}
