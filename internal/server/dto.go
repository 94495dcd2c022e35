package server

import (
	"encoding/json"

	"routeline/internal/domain"
)

// Request payloads

type ImportTableRequest struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// SelectionRequest toggles one row when Row is set, or every row when
// All is true.
type SelectionRequest struct {
	Row      *int `json:"row,omitempty"`
	All      bool `json:"all,omitempty"`
	Selected bool `json:"selected"`
}

type AppendColumnRequest struct {
	Cells []string `json:"cells,omitempty"`
}

type FillColumnRequest struct {
	FromRow int `json:"from_row"`
}

type StartRunRequest struct {
	APIKey string `json:"api_key,omitempty"`
}

type UpdateResultRequest struct {
	Title string `json:"title"`
}

// Response payloads

type TableResponse struct {
	Header       []string   `json:"header"`
	Rows         [][]string `json:"rows"`
	AttachedRows [][]string `json:"attached_rows,omitempty"`
	Selected     []bool     `json:"selected"`
}

type MappingResponse struct {
	MapConfig domain.MapConfig `json:"map_config"`
	SavedAt   string           `json:"saved_at,omitempty" format:"date-time"`
}

type ResultResponse struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	Title        string          `json:"title"`
	Response     json.RawMessage `json:"response,omitempty"`
	SharedURL    *string         `json:"shared_url,omitempty"`
	Status       string          `json:"status"`
	SolutionTime float64         `json:"solution_time"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
}

// Conversion helpers

func tableResponse(raw domain.RawTable, selected []bool) TableResponse {
	return TableResponse{
		Header:       nonNilSlice(raw.Header),
		Rows:         nonNilSlice(raw.Rows),
		AttachedRows: raw.AttachedRows,
		Selected:     nonNilSlice(selected),
	}
}

func resultResponse(res domain.OptimizationResult, withBody bool) ResultResponse {
	out := ResultResponse{
		ID:           res.ID,
		JobID:        res.JobID,
		Title:        res.Title,
		SharedURL:    res.SharedURL,
		Status:       res.Status,
		SolutionTime: res.SolutionTime,
		CreatedAt:    res.CreatedAt,
	}
	if withBody && res.ResponseData != "" {
		out.Response = json.RawMessage(res.ResponseData)
	}
	return out
}

func mapResults(items []domain.OptimizationResult) []ResultResponse {
	out := make([]ResultResponse, 0, len(items))
	for _, res := range items {
		out = append(out, resultResponse(res, false))
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
