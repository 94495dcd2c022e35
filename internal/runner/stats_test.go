package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"routeline/internal/domain"
	"routeline/internal/runner"
)

func TestStatsRefreshAggregatesStoredResults(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	insert := func(id, response string, solTime float64) {
		t.Helper()
		err := env.Repo.InsertResult(ctx, domain.OptimizationResult{
			ID: id, JobID: "j-" + id, Title: id, ResponseData: response,
			Status: "completed", SolutionTime: solTime, CreatedAt: "2026-03-10T12:00:00Z",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	insert("a", `{"routes":[{},{}],"unassigned":[{}]}`, 2.5)
	insert("b", `{"routes":[{}]}`, 1.0)
	insert("c", `not json`, 0.5)

	agg := &runner.StatsAggregator{Repo: env.Repo}
	stats, err := agg.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Results != 3 || stats.Routes != 3 || stats.Unassigned != 1 {
		t.Fatalf("stats %+v", stats)
	}
	if stats.TotalSolutionTime != 4.0 {
		t.Fatalf("solution time %v", stats.TotalSolutionTime)
	}
}

func TestGeocoderDeduplicatesInFlightLookups(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	g := runner.NewGeocoder(func(ctx context.Context, c domain.Coordinate) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return "123 Main St", nil
	})

	coord := domain.Coordinate{46.9099, -117.082}
	var wg sync.WaitGroup
	addrs := make([]string, 10)
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr, err := g.Address(context.Background(), coord)
			if err != nil {
				t.Error(err)
			}
			addrs[i] = addr
		}(i)
	}
	<-started
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("%d lookups, want 1 shared lookup", calls.Load())
	}
	for _, addr := range addrs {
		if addr != "123 Main St" {
			t.Fatalf("address %q", addr)
		}
	}

	// Cached: no further lookup.
	if _, err := g.Address(context.Background(), coord); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("cache miss after completion: %d lookups", calls.Load())
	}
}

func TestGeocoderRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int64
	g := runner.NewGeocoder(func(ctx context.Context, c domain.Coordinate) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	coord := domain.Coordinate{47, -117}

	if _, err := g.Address(context.Background(), coord); err == nil {
		t.Fatal("expected first lookup to fail")
	}
	addr, err := g.Address(context.Background(), coord)
	if err != nil || addr != "ok" {
		t.Fatalf("retry: %q, %v", addr, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("%d lookups", calls.Load())
	}
}
