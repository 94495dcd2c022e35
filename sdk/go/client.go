package routelinesdk

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
)

// Client is a minimal Routeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Table is an imported entity table with its selection mask.
type Table struct {
	Header       []string   `json:"header"`
	Rows         [][]string `json:"rows"`
	AttachedRows [][]string `json:"attached_rows,omitempty"`
	Selected     []bool     `json:"selected"`
}

// DataMapping binds one column index to a destination field key.
type DataMapping struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

// MetaMapping carries a table-wide setting not bound to a column.
type MetaMapping struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MapConfig is the mapping configuration of one entity table.
type MapConfig struct {
	DataMappings []DataMapping `json:"dataMappings"`
	MetaMappings []MetaMapping `json:"metaMappings,omitempty"`
}

// Mapping is the stored mapping record.
type Mapping struct {
	MapConfig MapConfig `json:"map_config"`
	SavedAt   string    `json:"saved_at,omitempty"`
}

// InputError locates one validation failure in a table.
type InputError struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Message     string `json:"message"`
}

// RunStatus is a snapshot of the current optimization run.
type RunStatus struct {
	State string `json:"state"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is one stored optimization outcome.
type Result struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	Title        string          `json:"title"`
	Response     json.RawMessage `json:"response,omitempty"`
	SharedURL    *string         `json:"shared_url,omitempty"`
	Status       string          `json:"status"`
	SolutionTime float64         `json:"solution_time"`
	CreatedAt    string          `json:"created_at"`
}

// Stats are totals over all stored results.
type Stats struct {
	Results           int     `json:"results"`
	Routes            int     `json:"routes"`
	Unassigned        int     `json:"unassigned"`
	TotalSolutionTime float64 `json:"total_solution_time"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ImportTable replaces an entity table. entity is job, vehicle or shipment.
func (c *Client) ImportTable(ctx context.Context, entity string, header []string, rows [][]string) (Table, error) {
	body := map[string]any{"header": header, "rows": rows}
	var resp Table
	err := c.do(ctx, http.MethodPost, entityPath("tables", entity), body, &resp)
	return resp, err
}

// GetTable returns the current table of an entity.
func (c *Client) GetTable(ctx context.Context, entity string) (Table, error) {
	var resp Table
	err := c.do(ctx, http.MethodGet, entityPath("tables", entity), nil, &resp)
	return resp, err
}

// SelectRow toggles one row's inclusion.
func (c *Client) SelectRow(ctx context.Context, entity string, row int, selected bool) error {
	body := map[string]any{"row": row, "selected": selected}
	return c.do(ctx, http.MethodPut, entityPath("tables", entity)+"/selection", body, nil)
}

// SelectAll toggles every row at once.
func (c *Client) SelectAll(ctx context.Context, entity string, selected bool) error {
	body := map[string]any{"all": true, "selected": selected}
	return c.do(ctx, http.MethodPut, entityPath("tables", entity)+"/selection", body, nil)
}

// TableErrors re-validates every mapped cell.
func (c *Client) TableErrors(ctx context.Context, entity string) ([]InputError, error) {
	var resp []InputError
	err := c.do(ctx, http.MethodGet, entityPath("tables", entity)+"/errors", nil, &resp)
	return resp, err
}

// GetMapping returns the current mapping configuration.
func (c *Client) GetMapping(ctx context.Context, entity string) (Mapping, error) {
	var resp Mapping
	err := c.do(ctx, http.MethodGet, entityPath("mappings", entity), nil, &resp)
	return resp, err
}

// SetMapping applies a mapping configuration.
func (c *Client) SetMapping(ctx context.Context, entity string, cfg MapConfig) (Mapping, error) {
	var resp Mapping
	err := c.do(ctx, http.MethodPost, entityPath("mappings", entity), cfg, &resp)
	return resp, err
}

// ClearMapping removes the stored mapping record.
func (c *Client) ClearMapping(ctx context.Context, entity string) error {
	return c.do(ctx, http.MethodPost, entityPath("mappings", entity), json.RawMessage("null"), nil)
}

// StartRun submits the compiled tables for optimization.
func (c *Client) StartRun(ctx context.Context, apiKey string) (RunStatus, error) {
	body := map[string]any{}
	if apiKey != "" {
		body["api_key"] = apiKey
	}
	var resp RunStatus
	err := c.do(ctx, http.MethodPost, "v0/optimizations", body, &resp)
	return resp, err
}

// CurrentRun returns the state of the in-flight run.
func (c *Client) CurrentRun(ctx context.Context) (RunStatus, error) {
	var resp RunStatus
	err := c.do(ctx, http.MethodGet, "v0/optimizations/current", nil, &resp)
	return resp, err
}

// CancelRun aborts the in-flight run.
func (c *Client) CancelRun(ctx context.Context) (RunStatus, error) {
	var resp RunStatus
	err := c.do(ctx, http.MethodPost, "v0/optimizations/cancel", nil, &resp)
	return resp, err
}

// ListResults returns stored results, newest first.
func (c *Client) ListResults(ctx context.Context, limit int) ([]Result, error) {
	endpoint := "v0/results"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Result
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetResult returns the newest result for a solver job id.
func (c *Client) GetResult(ctx context.Context, jobID string) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodGet, "v0/results/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// RenameResult updates a stored result's title.
func (c *Client) RenameResult(ctx context.Context, id, title string) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPatch, "v0/results/"+url.PathEscape(id), map[string]any{"title": title}, &resp)
	return resp, err
}

// DeleteResult removes a stored result.
func (c *Client) DeleteResult(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/results/"+url.PathEscape(id), nil, nil)
}

// ShareResult publishes a shareable copy of a result.
func (c *Client) ShareResult(ctx context.Context, id string) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPost, "v0/results/"+url.PathEscape(id)+"/share", nil, &resp)
	return resp, err
}

// Stats returns totals over all stored results.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "v0/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
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

func entityPath(kind, entity string) string {
	return fmt.Sprintf("v0/%s/%s", kind, url.PathEscape(entity))
}
