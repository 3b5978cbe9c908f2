// Package poller is the client side of bulk operations: it triggers a job over HTTP and
// follows its progress key until the job reaches a terminal state or the user gives up.
package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// ErrNotFound is returned when the server does not know a progress key
var ErrNotFound = errors.New("progress key not found")

// RequestError is a non-2xx answer from the bulk API
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Errors     map[string][]string
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("bulk api: %d %s", e.StatusCode, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	for field, errs := range e.Errors {
		msg += fmt.Sprintf("; %s: %s", field, strings.Join(errs, ", "))
	}
	return msg
}

// Filter selects targets server side
type Filter struct {
	Status  string `json:"status,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	FeedURL string `json:"feed_url,omitempty"`
}

// TriggerRequest is the body sent to POST /bulk/{operation}
type TriggerRequest struct {
	EntityType types.EntityType `json:"entity_type"`
	IDs        []int64          `json:"ids,omitempty"`
	Filter     *Filter          `json:"filter,omitempty"`
	Params     types.JobParams  `json:"params"`
}

// TriggerResult is the accepted-job answer
type TriggerResult struct {
	Success     bool              `json:"success"`
	ProgressKey types.ProgressKey `json:"progressKey"`
	TotalItems  int               `json:"totalItems"`
}

type progressResponse struct {
	Success  bool                   `json:"success"`
	Progress types.ProgressSnapshot `json:"progress"`
}

type errorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Details string              `json:"details"`
	Errors  map[string][]string `json:"errors"`
}

// ClientConfig configures Client
type ClientConfig struct {
	BaseURL string
	// Token is sent as a bearer token on every request when set
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the bulk endpoints
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a bulk API client
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
	}
}

// Trigger starts a bulk operation and returns its progress key
func (c *Client) Trigger(ctx context.Context, op types.Operation, req TriggerRequest) (*TriggerResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode trigger request: %w", err)
	}

	var result TriggerResult
	if err := c.do(ctx, http.MethodPost, "/bulk/"+url.PathEscape(string(op)), bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	if !result.ProgressKey.Valid() {
		return nil, fmt.Errorf("bulk api returned malformed progress key %q", result.ProgressKey)
	}
	return &result, nil
}

// Progress fetches the current snapshot for key. An unknown key yields ErrNotFound.
func (c *Client) Progress(ctx context.Context, key types.ProgressKey) (*types.ProgressSnapshot, error) {
	var resp progressResponse
	err := c.do(ctx, http.MethodGet, "/bulk/progress?key="+url.QueryEscape(key.String()), nil, &resp)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &resp.Progress, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &RequestError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.Error,
			Message:    apiErr.Message,
			Details:    apiErr.Details,
			Errors:     apiErr.Errors,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
