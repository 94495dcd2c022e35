package runner

import (
	"context"
	"encoding/json"
	"sync"

	"routeline/internal/domain"
	"routeline/internal/geo"
	"routeline/internal/repo"
)

// Stats are dashboard totals over all stored results.
type Stats struct {
	Results           int     `json:"results"`
	Routes            int     `json:"routes"`
	Unassigned        int     `json:"unassigned"`
	TotalSolutionTime float64 `json:"total_solution_time"`
}

// StatsAggregator recomputes Stats from the results table. A busy latch
// keeps concurrent refreshes from stacking up: while one recompute is in
// flight, other callers get the previous snapshot immediately.
type StatsAggregator struct {
	Repo repo.Repo

	mu   sync.Mutex
	busy bool
	last Stats
}

// Refresh returns up-to-date stats, or the last snapshot when a refresh
// is already running.
func (a *StatsAggregator) Refresh(ctx context.Context) (Stats, error) {
	a.mu.Lock()
	if a.busy {
		last := a.last
		a.mu.Unlock()
		return last, nil
	}
	a.busy = true
	a.mu.Unlock()

	stats, err := a.compute(ctx)

	a.mu.Lock()
	a.busy = false
	if err == nil {
		a.last = stats
	}
	last := a.last
	a.mu.Unlock()
	return last, err
}

func (a *StatsAggregator) compute(ctx context.Context) (Stats, error) {
	results, err := a.Repo.ListResults(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	stats.Results = len(results)
	for _, res := range results {
		stats.TotalSolutionTime += res.SolutionTime
		var sum resultSummary
		if err := json.Unmarshal([]byte(res.ResponseData), &sum); err != nil {
			continue
		}
		stats.Routes += len(sum.Routes)
		stats.Unassigned += len(sum.Unassigned)
	}
	return stats, nil
}

// GeocodeFunc resolves a coordinate to a display address.
type GeocodeFunc func(ctx context.Context, c domain.Coordinate) (string, error)

type geocodeCall struct {
	done chan struct{}
	addr string
	err  error
}

// Geocoder deduplicates reverse-geocode lookups. Concurrent requests for
// the same coordinate key share one in-flight lookup; completed answers
// are cached for the life of the process.
type Geocoder struct {
	Lookup GeocodeFunc

	mu      sync.Mutex
	cache   map[string]string
	pending map[string]*geocodeCall
}

func NewGeocoder(lookup GeocodeFunc) *Geocoder {
	return &Geocoder{
		Lookup:  lookup,
		cache:   map[string]string{},
		pending: map[string]*geocodeCall{},
	}
}

// Address resolves one coordinate, joining an in-flight lookup when one
// exists. Failed lookups are not cached, so a later call retries.
func (g *Geocoder) Address(ctx context.Context, c domain.Coordinate) (string, error) {
	key := geo.Key(c)

	g.mu.Lock()
	if addr, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return addr, nil
	}
	if call, ok := g.pending[key]; ok {
		g.mu.Unlock()
		select {
		case <-call.done:
			return call.addr, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &geocodeCall{done: make(chan struct{})}
	g.pending[key] = call
	g.mu.Unlock()

	call.addr, call.err = g.Lookup(ctx, c)

	g.mu.Lock()
	delete(g.pending, key)
	if call.err == nil {
		g.cache[key] = call.addr
	}
	g.mu.Unlock()
	close(call.done)
	return call.addr, call.err
}
