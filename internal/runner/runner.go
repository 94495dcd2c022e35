// Package runner drives one optimization run end to end: compile the
// current tables, submit to the solver, poll until the job finishes, and
// persist the outcome.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeline/internal/compile"
	"routeline/internal/domain"
	"routeline/internal/events"
	"routeline/internal/geo"
	"routeline/internal/repo"
	"routeline/internal/solver"
	"routeline/internal/table"
)

// State is the run lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateTimedOut   State = "timed_out"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateCancelled, StateFailed:
		return true
	}
	return false
}

const (
	defaultPollInterval = 5 * time.Second
	defaultPollCeiling  = 10 * time.Minute

	// The only poll message with defined semantics besides "".
	msgStillProcessing = "Still processing"
)

var (
	ErrNoJobSelected     = errors.New("no job selected")
	ErrNoVehicleSelected = errors.New("no vehicle selected")
	ErrMissingAPIKey     = errors.New("missing API key")
	ErrRunInProgress     = errors.New("optimization already running")
)

// SolverAPI is the slice of the solver client a run needs.
type SolverAPI interface {
	Submit(ctx context.Context, req domain.OptimizationRequest) (solver.SubmitResponse, error)
	Result(ctx context.Context, jobID string) (solver.ResultResponse, error)
	CreateShared(ctx context.Context, jobID string) (solver.SharedResponse, error)
}

// Runner owns the state machine of the single current run.
type Runner struct {
	Store  *table.Store
	Repo   repo.Repo
	Solver SolverAPI
	Events events.Writer
	Logger *log.Logger
	Now    func() time.Time

	PollInterval time.Duration
	PollCeiling  time.Duration

	mu     sync.Mutex
	state  State
	jobID  string
	runErr error
	cancel context.CancelFunc
}

func New(store *table.Store, r repo.Repo, sv SolverAPI, ev events.Writer) *Runner {
	return &Runner{
		Store:        store,
		Repo:         r,
		Solver:       sv,
		Events:       ev,
		Logger:       log.Default(),
		Now:          time.Now,
		PollInterval: defaultPollInterval,
		PollCeiling:  defaultPollCeiling,
		state:        StateIdle,
	}
}

// Status is a snapshot of the current run.
type Status struct {
	State State  `json:"state"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{State: r.state, JobID: r.jobID}
	if r.runErr != nil {
		st.Error = r.runErr.Error()
	}
	return st
}

// Cancel aborts the in-flight run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// begin moves Idle or a terminal state into Submitting, rejecting
// concurrent runs.
func (r *Runner) begin(cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle && !r.state.Terminal() {
		return ErrRunInProgress
	}
	r.state = StateSubmitting
	r.jobID = ""
	r.runErr = nil
	r.cancel = cancel
	return nil
}

func (r *Runner) transition(s State, err error) {
	r.mu.Lock()
	r.state = s
	if err != nil {
		r.runErr = err
	}
	if s.Terminal() {
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *Runner) setJobID(id string) {
	r.mu.Lock()
	r.jobID = id
	r.mu.Unlock()
}

func (r *Runner) entityState(entity domain.EntityType) geo.EntityState {
	return geo.EntityState{
		Raw:      r.Store.RawData(entity),
		Config:   r.Store.MapConfig(entity),
		Selected: r.Store.Selection(entity),
	}
}

func selectedCount(st geo.EntityState) int {
	n := 0
	for row := range st.Raw.Rows {
		if len(st.Selected) == 0 || (row < len(st.Selected) && st.Selected[row]) {
			n++
		}
	}
	return n
}

func preconditions(in compile.Input, apiKey string) error {
	if selectedCount(in.Jobs) == 0 && selectedCount(in.Shipments) == 0 {
		return ErrNoJobSelected
	}
	if selectedCount(in.Vehicles) == 0 {
		return ErrNoVehicleSelected
	}
	if apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Preflight checks the run preconditions without touching the network or
// the run state. Callers that start Run asynchronously use it to report
// precondition failures synchronously.
func (r *Runner) Preflight(apiKey string) error {
	in := compile.Input{
		Jobs:      r.entityState(domain.EntityJob),
		Vehicles:  r.entityState(domain.EntityVehicle),
		Shipments: r.entityState(domain.EntityShipment),
	}
	if err := preconditions(in, apiKey); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle && !r.state.Terminal() {
		return ErrRunInProgress
	}
	return nil
}

// Run executes one full optimization cycle and blocks until a terminal
// state. It returns the solver job id on completion. Preconditions fail
// before any network call is made.
func (r *Runner) Run(ctx context.Context, apiKey string) (string, error) {
	in := compile.Input{
		Jobs:      r.entityState(domain.EntityJob),
		Vehicles:  r.entityState(domain.EntityVehicle),
		Shipments: r.entityState(domain.EntityShipment),
	}
	if err := preconditions(in, apiKey); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.begin(cancel); err != nil {
		return "", err
	}

	req, err := compile.Build(in)
	if err != nil {
		r.transition(StateFailed, err)
		return "", err
	}

	sub, err := r.Solver.Submit(ctx, req)
	if err != nil {
		r.transition(StateFailed, fmt.Errorf("submit: %w", err))
		return "", err
	}
	r.setJobID(sub.ID)
	r.appendEvent(ctx, "run.submitted", sub.ID, events.EventPayload{
		"jobs":     len(req.Jobs),
		"vehicles": len(req.Vehicles),
	})
	r.transition(StatePolling, nil)

	start := r.now()
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.transition(StateCancelled, ctx.Err())
			r.appendEvent(context.WithoutCancel(ctx), "run.cancelled", sub.ID, nil)
			return "", ctx.Err()
		case <-ticker.C:
		}

		if r.now().Sub(start) > r.PollCeiling {
			err := fmt.Errorf("no completion after %s", r.PollCeiling)
			r.transition(StateTimedOut, err)
			r.appendEvent(ctx, "run.timed_out", sub.ID, nil)
			return "", err
		}

		res, err := r.Solver.Result(ctx, sub.ID)
		if err != nil {
			r.Logger.Printf("poll %s: %v", sub.ID, err)
			continue
		}
		if res.Message != "" {
			if res.Message != msgStillProcessing {
				r.Logger.Printf("poll %s: unexpected message %q", sub.ID, res.Message)
			}
			continue
		}

		if err := r.complete(ctx, sub.ID, res.Result, r.now().Sub(start)); err != nil {
			r.transition(StateFailed, err)
			return "", err
		}
		r.transition(StateCompleted, nil)
		return sub.ID, nil
	}
}

// complete persists exactly one result record for the finished job. The
// share call is best effort; its failure never fails the run.
func (r *Runner) complete(ctx context.Context, jobID string, result json.RawMessage, elapsed time.Duration) error {
	now := r.now().UTC()
	rec := domain.OptimizationResult{
		ID:           uuid.NewString(),
		JobID:        jobID,
		Title:        synthesizeTitle(now, result),
		ResponseData: string(result),
		Status:       "completed",
		SolutionTime: elapsed.Seconds(),
		CreatedAt:    now.Format(time.RFC3339),
	}
	if err := r.Repo.InsertResult(ctx, rec); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	r.appendEvent(ctx, "run.completed", jobID, events.EventPayload{"result_id": rec.ID})

	shared, err := r.Solver.CreateShared(ctx, jobID)
	if err != nil {
		r.Logger.Printf("share %s: %v", jobID, err)
		return nil
	}
	if shared.ID != "" {
		url := "shared/" + shared.ID
		if err := r.Repo.SetResultSharedURL(ctx, rec.ID, url); err != nil {
			r.Logger.Printf("store share url for %s: %v", rec.ID, err)
		}
	}
	return nil
}

func (r *Runner) appendEvent(ctx context.Context, evtType, jobID string, payload events.EventPayload) {
	if r.Events.DB == nil {
		return
	}
	if err := r.Events.Append(ctx, nil, evtType, "optimization", jobID, "runner", payload); err != nil {
		r.Logger.Printf("append %s event: %v", evtType, err)
	}
}

// resultSummary is the slice of the solver response the title needs.
type resultSummary struct {
	Routes     []json.RawMessage `json:"routes"`
	Unassigned []json.RawMessage `json:"unassigned"`
	Summary    struct {
		Duration int64 `json:"duration"`
	} `json:"summary"`
}

func synthesizeTitle(now time.Time, result json.RawMessage) string {
	title := now.Format("01/02 15:04")
	var sum resultSummary
	if err := json.Unmarshal(result, &sum); err != nil {
		return title
	}
	title += fmt.Sprintf(" - %d routes", len(sum.Routes))
	if len(sum.Unassigned) > 0 {
		title += fmt.Sprintf(", %d unassigned", len(sum.Unassigned))
	}
	if sum.Summary.Duration > 0 {
		title += fmt.Sprintf(", %s driving", (time.Duration(sum.Summary.Duration) * time.Second).Round(time.Minute))
	}
	return title
}
