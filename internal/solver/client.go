// Package solver talks to the external optimization service. The service
// is a black box: submit a compiled request, poll the result by id, and
// optionally publish a shareable copy.
package solver

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

	"routeline/internal/domain"
)

// Client calls the optimization HTTP API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. The HTTP client is fixed
// here so a Client shared across goroutines never mutates itself.
func New(baseURL, apiKey string) *Client {
	timeout := 30 * time.Second
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

// SubmitResponse acknowledges a submission with the solver's job id.
type SubmitResponse struct {
	ID string `json:"id"`
}

// ResultResponse is one poll answer. An empty Message means the job is
// done and Result carries the solution; any other message means keep
// waiting or give up, the orchestrator decides.
type ResultResponse struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// SharedResponse carries the id of a published shareable result copy.
type SharedResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("solver error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit posts a compiled request and returns the solver job id.
func (c *Client) Submit(ctx context.Context, req domain.OptimizationRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "optimization", req, &resp)
	return resp, err
}

// Result polls one job.
func (c *Client) Result(ctx context.Context, jobID string) (ResultResponse, error) {
	var resp ResultResponse
	endpoint := fmt.Sprintf("optimization/result/%s", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateShared asks the service to publish a shareable copy of a result.
func (c *Client) CreateShared(ctx context.Context, jobID string) (SharedResponse, error) {
	var resp SharedResponse
	endpoint := fmt.Sprintf("optimization/result/%s/shared", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
