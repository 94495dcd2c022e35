// Package app wires the pipeline pieces into one context shared by the
// CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"routeline/internal/config"
	"routeline/internal/db"
	"routeline/internal/domain"
	"routeline/internal/events"
	"routeline/internal/migrate"
	"routeline/internal/repo"
	"routeline/internal/runner"
	"routeline/internal/solver"
	"routeline/internal/table"
)

// Context is the fully wired pipeline for one workspace.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Store     *table.Store
	Solver    *solver.Client
	Runner    *runner.Runner
}

// Open builds the pipeline: database plus migrations, persisted mappings
// hydrated into the store, solver client, runner. Config is optional;
// a missing routeline.yml means defaults.
func Open(ctx context.Context, workspace string) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	rp := repo.Repo{DB: conn}
	store := table.New(rp)
	if err := hydrateMappings(ctx, rp, store); err != nil {
		conn.Close()
		return nil, err
	}
	sv := solver.New(cfg.Solver.BaseURL, cfg.Solver.APIKey)
	run := runner.New(store, rp, sv, events.Writer{DB: conn})
	run.PollInterval = cfg.PollInterval()
	run.PollCeiling = cfg.PollCeiling()
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      rp,
		Store:     store,
		Solver:    sv,
		Runner:    run,
	}, nil
}

// hydrateMappings restores stored mapping records without refreshing
// their save timestamps. Corrupt records were already cleared by
// LoadMapping and come back nil.
func hydrateMappings(ctx context.Context, rp repo.Repo, store *table.Store) error {
	for _, entity := range domain.EntityTypes() {
		env, err := rp.LoadMapping(ctx, entity)
		if err != nil {
			return fmt.Errorf("load %s mapping: %w", entity, err)
		}
		if env == nil {
			continue
		}
		if err := store.HydrateMapping(entity, env.MapConfig); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending mapping writes and releases the database.
func (c *Context) Close() error {
	c.Store.Flush()
	return c.DB.Close()
}
