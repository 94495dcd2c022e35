package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"routeline/internal/db"
	"routeline/internal/domain"
	"routeline/internal/events"
	"routeline/internal/migrate"
	"routeline/internal/repo"
	"routeline/internal/runner"
	"routeline/internal/solver"
	"routeline/internal/table"
)

const testAPIKey = "test-key"

type testServer struct {
	URL    string
	Repo   repo.Repo
	Store  *table.Store
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, solverURL string) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rp := repo.Repo{DB: conn}
	if err := rp.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "key-1",
		ActorID: "tester",
		Name:    "test",
		KeyHash: repo.HashAPIKey(testAPIKey),
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	store := table.New(rp)
	sv := solver.New(solverURL, "solver-key")
	run := runner.New(store, rp, sv, events.Writer{DB: conn})
	run.PollInterval = time.Millisecond

	handler, err := New(Config{
		Store:        store,
		Repo:         rp,
		Runner:       run,
		Solver:       sv,
		Stats:        &runner.StatsAggregator{Repo: rp},
		SolverAPIKey: "solver-key",
		BasePath:     "/v0",
		Auth:         AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   rp,
		Store:  store,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthOpenButAPIRequiresAuth(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/health", nil)
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health without auth: %d", res.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v0/results", nil)
	res, err = client.Do(req)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("results without auth: %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/results", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("results with bad key: %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/results", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("results with key: %d", res.StatusCode)
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	const callers = 8
	bodies := make([][]byte, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
			if res.StatusCode != http.StatusOK {
				t.Errorf("openapi status: %d", res.StatusCode)
				return
			}
			bodies[i] = body
		}(i)
	}
	wg.Wait()

	var oas struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(bodies[0], &oas); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if _, ok := oas.Paths["/v0/optimizations"]; !ok {
		t.Fatal("document missing /v0/optimizations")
	}

	for i := 1; i < callers; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("caller %d saw a different document", i)
		}
	}
}

func TestTableImportSelectionAndValidation(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tables/job", map[string]any{
		"header": []string{"name", "prio"},
		"rows":   [][]string{{"a", "5"}, {"b", "abc"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/mappings/job", map[string]any{
		"dataMappings": []map[string]any{{"index": 1, "value": "priority"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set mapping: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tables/job/errors", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("errors: %d %s", res.StatusCode, string(data))
	}
	var errs []domain.InputErrorInfo
	if err := json.Unmarshal(data, &errs); err != nil {
		t.Fatalf("unmarshal errors: %v", err)
	}
	if len(errs) != 1 || errs[0].RowIndex != 1 || errs[0].ColumnIndex != 1 {
		t.Fatalf("unexpected errors: %+v", errs)
	}

	row := 0
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tables/job/selection", map[string]any{
		"row": row, "selected": false,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("selection: %d %s", res.StatusCode, string(data))
	}
	var sel struct {
		Selected []bool `json:"selected"`
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		t.Fatalf("unmarshal selection: %v", err)
	}
	if len(sel.Selected) != 2 || sel.Selected[0] || !sel.Selected[1] {
		t.Fatalf("unexpected selection: %v", sel.Selected)
	}

	// A re-import discards the selection.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tables/job", map[string]any{
		"header": []string{"name", "prio"},
		"rows":   [][]string{{"a", "1"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("re-import: %d %s", res.StatusCode, string(data))
	}
	var tab TableResponse
	if err := json.Unmarshal(data, &tab); err != nil {
		t.Fatalf("unmarshal table: %v", err)
	}
	if len(tab.Selected) != 1 || !tab.Selected[0] {
		t.Fatalf("selection not reset: %v", tab.Selected)
	}
}

func TestMappingNullBodyClearsRecord(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/mappings/vehicle", map[string]any{
		"dataMappings": []map[string]any{{"index": 0, "value": "start_location"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set mapping: %d %s", res.StatusCode, string(data))
	}
	srv.Store.Flush()
	env, err := srv.Repo.LoadMapping(context.Background(), domain.EntityVehicle)
	if err != nil || env == nil {
		t.Fatalf("mapping not persisted: %v %v", env, err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/mappings/vehicle", json.RawMessage("null"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear mapping: %d %s", res.StatusCode, string(data))
	}
	var cleared MappingResponse
	if err := json.Unmarshal(data, &cleared); err != nil {
		t.Fatalf("unmarshal mapping: %v", err)
	}
	if len(cleared.MapConfig.DataMappings) != 0 {
		t.Fatalf("mapping not cleared: %+v", cleared.MapConfig)
	}
	srv.Store.Flush()
	env, err = srv.Repo.LoadMapping(context.Background(), domain.EntityVehicle)
	if err != nil {
		t.Fatalf("load mapping: %v", err)
	}
	if env != nil {
		t.Fatalf("stored record survived clear: %+v", env)
	}
}

func TestStartRunPreconditionsFail(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/optimizations", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var envlp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envlp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envlp.Error.Code != "precondition_failed" {
		t.Fatalf("unexpected code %q", envlp.Error.Code)
	}
}

func TestResultsLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0")
	client := srv.Client()

	rec := domain.OptimizationResult{
		ID:           "res-1",
		JobID:        "job-9",
		Title:        "first",
		ResponseData: `{"routes":[{}],"unassigned":[]}`,
		Status:       "completed",
		SolutionTime: 2.5,
		CreatedAt:    "2026-03-10T12:00:00Z",
	}
	if err := srv.Repo.InsertResult(context.Background(), rec); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/results/job-9", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get result: %d %s", res.StatusCode, string(data))
	}
	var got ResultResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got.ID != "res-1" || len(got.Response) == 0 {
		t.Fatalf("unexpected result: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/results/res-1", map[string]any{"title": "renamed"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rename: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &got)
	if got.Title != "renamed" {
		t.Fatalf("title not updated: %q", got.Title)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/results/missing", map[string]any{"title": "x"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("rename missing: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats runner.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Results != 1 || stats.Routes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/results/res-1", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/results", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var list []ResultResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}

func TestStartRunCompletesAgainstFakeSolver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /optimization", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "job-77"})
	})
	mux.HandleFunc("GET /optimization/result/job-77", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": "",
			"result":  map[string]any{"routes": []any{map[string]any{}}, "unassigned": []any{}},
		})
	})
	mux.HandleFunc("GET /optimization/result/job-77/shared", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "", "id": "sh-1"})
	})
	fake := httptest.NewServer(mux)
	defer fake.Close()

	srv := newTestServer(t, fake.URL)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tables/job", map[string]any{
		"header": []string{"id", "loc"},
		"rows":   [][]string{{"a", "46.9099,-117.0820"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import jobs: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/mappings/job", map[string]any{
		"dataMappings": []map[string]any{{"index": 0, "value": "id"}, {"index": 1, "value": "location"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("map jobs: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tables/vehicle", map[string]any{
		"header": []string{"start"},
		"rows":   [][]string{{"46.9099,-117.0820"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import vehicles: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/mappings/vehicle", map[string]any{
		"dataMappings": []map[string]any{{"index": 0, "value": "start_location"}},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("map vehicles: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/optimizations", map[string]any{}, nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("start run: %d %s", res.StatusCode, string(data))
	}

	deadline := time.Now().Add(5 * time.Second)
	var status runner.Status
	for {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/optimizations/current", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("current: %d %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("unmarshal status: %v", err)
		}
		if status.State.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish: %+v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status.State != runner.StateCompleted || status.JobID != "job-77" {
		t.Fatalf("unexpected terminal status: %+v", status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/results/job-77", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("result after run: %d %s", res.StatusCode, string(data))
	}
	var got ResultResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got.SharedURL == nil || *got.SharedURL != "shared/sh-1" {
		t.Fatalf("share url not stored: %+v", got.SharedURL)
	}
}
