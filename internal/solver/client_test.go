package solver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"routeline/internal/domain"
	"routeline/internal/solver"
)

func TestNewInitializesHTTPClient(t *testing.T) {
	c := solver.New("http://localhost:1", "key")
	if c.HTTPClient == nil {
		t.Fatal("New returned a client without an HTTP client")
	}
}

func TestConcurrentCallsShareOneClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /optimization/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"message": "processing"})
	})
	mux.HandleFunc("GET /optimization/result/{id}/shared", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"message": "", "id": "sh-1"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := solver.New(ts.URL, "key")
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := c.Result(ctx, "job-1"); err != nil {
				t.Errorf("result: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := c.CreateShared(ctx, "job-1"); err != nil {
				t.Errorf("shared: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestSubmitSendsBearerAndDecodesID(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /optimization", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"id": "job-42"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := solver.New(ts.URL, "secret")
	sub, err := c.Submit(context.Background(), domain.OptimizationRequest{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ID != "job-42" {
		t.Fatalf("id %q", sub.ID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header %q", gotAuth)
	}
}

func TestNon2xxWrappedInAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := solver.New(ts.URL, "")
	_, err := c.Submit(context.Background(), domain.OptimizationRequest{})
	var apiErr *solver.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", apiErr.StatusCode)
	}
}
