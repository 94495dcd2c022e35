// Package server exposes the routeline pipeline over HTTP: table import,
// column mapping, validation, optimization runs and stored results.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"routeline/internal/compile"
	"routeline/internal/domain"
	"routeline/internal/repo"
	"routeline/internal/runner"
	"routeline/internal/schema"
	"routeline/internal/table"
)

// Config for the HTTP API handler.
type Config struct {
	Store  *table.Store
	Repo   repo.Repo
	Runner *runner.Runner
	Solver runner.SolverAPI
	Stats  *runner.StatsAggregator

	// SolverAPIKey is used when a run request carries no key of its own.
	SolverAPIKey string

	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"result not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Routeline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(raw))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Routeline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTables(group, cfg.Store)
	registerFields(group)
	registerMappings(group, cfg.Store, cfg.Repo)
	registerOptimizations(group, cfg)
	registerResults(group, cfg)
	registerStats(group, cfg.Stats)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var re *compile.RowError
	if errors.As(err, &re) {
		return newAPIError(http.StatusUnprocessableEntity, "compile_failed", err.Error(), map[string]any{
			"entity": string(re.Entity),
			"row":    re.Row,
			"field":  re.Field,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, runner.ErrRunInProgress) {
		return newAPIError(http.StatusConflict, "run_in_progress", err.Error(), nil)
	}
	if errors.Is(err, runner.ErrNoJobSelected) ||
		errors.Is(err, runner.ErrNoVehicleSelected) ||
		errors.Is(err, runner.ErrMissingAPIKey) {
		return newAPIError(http.StatusBadRequest, "precondition_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "out of range") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func entityFromPath(s string) (domain.EntityType, huma.StatusError) {
	e := domain.EntityType(s)
	if !e.Valid() {
		return "", newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown entity type %q", s), nil)
	}
	return e, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTables(api huma.API, store *table.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "import-table",
		Method:      http.MethodPost,
		Path:        "/tables/{entity}",
		Summary:     "Replace an entity table",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string             `path:"entity" enum:"job,vehicle,shipment"`
		Body   ImportTableRequest `json:"body"`
	}) (*struct {
		Body TableResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		raw := domain.RawTable{Header: input.Body.Header, Rows: input.Body.Rows}
		if err := store.SetRawData(entity, raw); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TableResponse `json:"body"`
		}{Body: tableResponse(store.RawData(entity), store.Selection(entity))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-table",
		Method:      http.MethodGet,
		Path:        "/tables/{entity}",
		Summary:     "Current entity table",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `path:"entity" enum:"job,vehicle,shipment"`
	}) (*struct {
		Body TableResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		return &struct {
			Body TableResponse `json:"body"`
		}{Body: tableResponse(store.RawData(entity), store.Selection(entity))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-selection",
		Method:      http.MethodPut,
		Path:        "/tables/{entity}/selection",
		Summary:     "Toggle row selection",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string           `path:"entity" enum:"job,vehicle,shipment"`
		Body   SelectionRequest `json:"body"`
	}) (*struct {
		Body struct {
			Selected []bool `json:"selected"`
		} `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		var err error
		switch {
		case input.Body.Row != nil:
			err = store.SetRowSelected(entity, *input.Body.Row, input.Body.Selected)
		case input.Body.All:
			err = store.SetAllRowsSelected(entity, input.Body.Selected)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "row or all is required", nil)
		}
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		out := &struct {
			Body struct {
				Selected []bool `json:"selected"`
			} `json:"body"`
		}{}
		out.Body.Selected = nonNilSlice(store.Selection(entity))
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-column",
		Method:        http.MethodPost,
		Path:          "/tables/{entity}/columns",
		Summary:       "Append an attached column",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string              `path:"entity" enum:"job,vehicle,shipment"`
		Body   AppendColumnRequest `json:"body"`
	}) (*struct {
		Body TableResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		if err := store.AppendAttachedRows(entity, input.Body.Cells); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TableResponse `json:"body"`
		}{Body: tableResponse(store.RawData(entity), store.Selection(entity))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fill-column",
		Method:      http.MethodPost,
		Path:        "/tables/{entity}/columns/{index}/fill",
		Summary:     "Copy one attached cell down its column",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string            `path:"entity" enum:"job,vehicle,shipment"`
		Index  int               `path:"index"`
		Body   FillColumnRequest `json:"body"`
	}) (*struct {
		Body TableResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		if err := store.CopyAttributeColumn(entity, input.Index, input.Body.FromRow); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TableResponse `json:"body"`
		}{Body: tableResponse(store.RawData(entity), store.Selection(entity))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-column",
		Method:      http.MethodDelete,
		Path:        "/tables/{entity}/columns/{index}",
		Summary:     "Delete an attached column",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `path:"entity" enum:"job,vehicle,shipment"`
		Index  int    `path:"index"`
	}) (*struct {
		Body TableResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		if err := store.DeleteAttachedColumn(entity, input.Index); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body TableResponse `json:"body"`
		}{Body: tableResponse(store.RawData(entity), store.Selection(entity))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "table-errors",
		Method:      http.MethodGet,
		Path:        "/tables/{entity}/errors",
		Summary:     "Validate mapped cells",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `path:"entity" enum:"job,vehicle,shipment"`
	}) (*struct {
		Body []domain.InputErrorInfo `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		return &struct {
			Body []domain.InputErrorInfo `json:"body"`
		}{Body: nonNilSlice(store.Errors(entity))}, nil
	})
}

func registerFields(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "field-menu",
		Method:      http.MethodGet,
		Path:        "/fields/{entity}",
		Summary:     "Mapping field menu",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `path:"entity" enum:"job,vehicle,shipment"`
	}) (*struct {
		Body []schema.MenuGroup `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		return &struct {
			Body []schema.MenuGroup `json:"body"`
		}{Body: nonNilSlice(schema.CatalogFor(entity).Menu())}, nil
	})
}

func registerMappings(api huma.API, store *table.Store, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-mapping",
		Method:      http.MethodGet,
		Path:        "/mappings/{entity}",
		Summary:     "Current mapping configuration",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity string `path:"entity" enum:"job,vehicle,shipment"`
	}) (*struct {
		Body MappingResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		resp := MappingResponse{MapConfig: store.MapConfig(entity)}
		env, err := r.LoadMapping(ctx, entity)
		if err != nil {
			return nil, handleError(err)
		}
		if env != nil {
			resp.SavedAt = env.Timestamp
		}
		return &struct {
			Body MappingResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mapping",
		Method:      http.MethodPost,
		Path:        "/mappings/{entity}",
		Summary:     "Apply or clear a mapping configuration",
		Description: "A JSON null or empty body clears the stored record.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Entity  string `path:"entity" enum:"job,vehicle,shipment"`
		RawBody []byte `required:"false"`
	}) (*struct {
		Body MappingResponse `json:"body"`
	}, error) {
		entity, apiErr := entityFromPath(input.Entity)
		if apiErr != nil {
			return nil, apiErr
		}
		raw := input.RawBody
		var err error
		if len(raw) == 0 || isNullRaw(raw) {
			err = store.ResetMapping(ctx, entity)
		} else {
			var cfg domain.MapConfig
			if uerr := json.Unmarshal(raw, &cfg); uerr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid mapping payload", map[string]any{"error": uerr.Error()})
			}
			err = store.SetMapConfig(ctx, entity, cfg)
		}
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body MappingResponse `json:"body"`
		}{Body: MappingResponse{MapConfig: store.MapConfig(entity)}}, nil
	})
}

func registerOptimizations(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-optimization",
		Method:        http.MethodPost,
		Path:          "/optimizations",
		Summary:       "Compile the tables and run one optimization",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body StartRunRequest `json:"body" required:"false"`
	}) (*struct {
		Body runner.Status `json:"body"`
	}, error) {
		apiKey := input.Body.APIKey
		if apiKey == "" {
			apiKey = cfg.SolverAPIKey
		}
		if err := cfg.Runner.Preflight(apiKey); err != nil {
			return nil, handleError(err)
		}
		cfg.Logger.Printf("optimization run started by %s", actorFromContext(ctx))
		go func() {
			if _, err := cfg.Runner.Run(context.Background(), apiKey); err != nil {
				cfg.Logger.Printf("optimization run: %v", err)
			}
		}()
		return &struct {
			Body runner.Status `json:"body"`
		}{Body: runner.Status{State: runner.StateSubmitting}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-optimization",
		Method:      http.MethodGet,
		Path:        "/optimizations/current",
		Summary:     "Current run state",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body runner.Status `json:"body"`
	}, error) {
		return &struct {
			Body runner.Status `json:"body"`
		}{Body: cfg.Runner.Status()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-optimization",
		Method:      http.MethodPost,
		Path:        "/optimizations/cancel",
		Summary:     "Abort the in-flight run",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body runner.Status `json:"body"`
	}, error) {
		cfg.Runner.Cancel()
		return &struct {
			Body runner.Status `json:"body"`
		}{Body: cfg.Runner.Status()}, nil
	})
}

func registerResults(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-results",
		Method:      http.MethodGet,
		Path:        "/results",
		Summary:     "List stored results",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []ResultResponse `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListResults(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ResultResponse `json:"body"`
		}{Body: mapResults(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-result",
		Method:      http.MethodGet,
		Path:        "/results/{job_id}",
		Summary:     "Newest result for a solver job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		res, err := cfg.Repo.GetResultByJobID(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultResponse `json:"body"`
		}{Body: resultResponse(res, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-result",
		Method:      http.MethodPatch,
		Path:        "/results/{id}",
		Summary:     "Rename a stored result",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateResultRequest `json:"body"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		title := strings.TrimSpace(input.Body.Title)
		if title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if err := cfg.Repo.UpdateResultTitle(ctx, input.ID, title); err != nil {
			return nil, handleError(err)
		}
		res, err := cfg.Repo.GetResult(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultResponse `json:"body"`
		}{Body: resultResponse(res, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-result",
		Method:        http.MethodDelete,
		Path:          "/results/{id}",
		Summary:       "Delete a stored result",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := cfg.Repo.DeleteResult(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "share-result",
		Method:      http.MethodPost,
		Path:        "/results/{id}/share",
		Summary:     "Create a shared link for a result",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		res, err := cfg.Repo.GetResult(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		shared, err := cfg.Solver.CreateShared(ctx, res.JobID)
		if err != nil {
			return nil, newAPIError(http.StatusBadGateway, "solver_error", err.Error(), nil)
		}
		if shared.ID != "" {
			if err := cfg.Repo.SetResultSharedURL(ctx, res.ID, "shared/"+shared.ID); err != nil {
				return nil, handleError(err)
			}
		}
		res, err = cfg.Repo.GetResult(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResultResponse `json:"body"`
		}{Body: resultResponse(res, false)}, nil
	})
}

func registerStats(api huma.API, stats *runner.StatsAggregator) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Totals over all stored results",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body runner.Stats `json:"body"`
	}, error) {
		snapshot, err := stats.Refresh(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body runner.Stats `json:"body"`
		}{Body: snapshot}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Routeline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func isNullRaw(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
