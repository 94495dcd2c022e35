package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"routeline/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

const envelopeVersion = 1

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SaveMapping upserts the mapping record for an entity, wrapped in an
// envelope carrying the save timestamp and format version.
func (r Repo) SaveMapping(ctx context.Context, entity domain.EntityType, cfg domain.MapConfig) error {
	if !entity.Valid() {
		return fmt.Errorf("unknown entity type %q", entity)
	}
	env := domain.MappingEnvelope{
		MapConfig: cfg,
		Timestamp: r.now().UTC().Format(time.RFC3339),
		Version:   envelopeVersion,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s mapping: %w", entity, err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO mappings(entity,payload_json,updated_at) VALUES (?,?,?)
ON CONFLICT(entity) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`,
		string(entity), string(payload), env.Timestamp)
	return err
}

// LoadMapping returns the stored envelope, or nil when none exists. A
// record that does not unmarshal into a well-formed envelope is treated
// as absent: it is cleared and nil is returned, so a corrupt row can
// never wedge the mapping screen.
func (r Repo) LoadMapping(ctx context.Context, entity domain.EntityType) (*domain.MappingEnvelope, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM mappings WHERE entity=?`, string(entity)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env domain.MappingEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || !envelopeValid(env) {
		if clearErr := r.ClearMapping(ctx, entity); clearErr != nil {
			return nil, fmt.Errorf("clear corrupt %s mapping: %w", entity, clearErr)
		}
		return nil, nil
	}
	return &env, nil
}

// envelopeValid checks structure only. The version field exists for
// forward migration; an unknown version still loads as long as the
// envelope is well formed.
func envelopeValid(env domain.MappingEnvelope) bool {
	if env.Version < 1 {
		return false
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		return false
	}
	for _, m := range env.MapConfig.DataMappings {
		if m.Index < 0 || strings.TrimSpace(m.Value) == "" {
			return false
		}
	}
	return true
}

// ClearMapping removes the stored record. Clearing an absent record is
// not an error.
func (r Repo) ClearMapping(ctx context.Context, entity domain.EntityType) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM mappings WHERE entity=?`, string(entity))
	return err
}

// HasMapping reports whether a record exists, without validating it.
func (r Repo) HasMapping(ctx context.Context, entity domain.EntityType) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings WHERE entity=?`, string(entity)).Scan(&n)
	return n > 0, err
}

// MappingAgeInDays returns whole days since the envelope timestamp.
// ErrNotFound when no valid record exists.
func (r Repo) MappingAgeInDays(ctx context.Context, entity domain.EntityType) (int, error) {
	env, err := r.LoadMapping(ctx, entity)
	if err != nil {
		return 0, err
	}
	if env == nil {
		return 0, ErrNotFound
	}
	saved, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return 0, err
	}
	age := r.now().UTC().Sub(saved)
	if age < 0 {
		return 0, nil
	}
	return int(age.Hours() / 24), nil
}

func scanResult(scan func(dest ...any) error) (domain.OptimizationResult, error) {
	var res domain.OptimizationResult
	var response, shared sql.NullString
	err := scan(&res.ID, &res.JobID, &res.Title, &response, &shared, &res.Status, &res.SolutionTime, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if response.Valid {
		res.ResponseData = response.String
	}
	if shared.Valid {
		res.SharedURL = &shared.String
	}
	return res, nil
}

const resultColumns = `id,job_id,title,response_json,shared_url,status,solution_time,created_at`

func (r Repo) InsertResult(ctx context.Context, res domain.OptimizationResult) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO results(`+resultColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		res.ID, res.JobID, res.Title, nullable(res.ResponseData), nullableStringPtr(res.SharedURL),
		res.Status, res.SolutionTime, res.CreatedAt)
	return err
}

func (r Repo) GetResult(ctx context.Context, id string) (domain.OptimizationResult, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id=?`, id)
	return scanResult(row.Scan)
}

// GetResultByJobID returns the newest result for a solver job id.
func (r Repo) GetResultByJobID(ctx context.Context, jobID string) (domain.OptimizationResult, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE job_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, jobID)
	return scanResult(row.Scan)
}

func (r Repo) ListResults(ctx context.Context, limit int) ([]domain.OptimizationResult, error) {
	query := `SELECT ` + resultColumns + ` FROM results ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OptimizationResult
	for rows.Next() {
		res, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r Repo) UpdateResultTitle(ctx context.Context, id, title string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE results SET title=? WHERE id=?`, title, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetResultSharedURL(ctx context.Context, id, url string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE results SET shared_url=? WHERE id=?`, nullable(url), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteResult(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM results WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns events newest-first, optionally filtered by type
// and entity kind.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
