package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provision-cli/internal/db"
	"github.com/sells-group/provision-cli/internal/provision"
)

const resultsTable = "provision_results"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	services   TEXT[] NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB NOT NULL DEFAULT '{}',
	summaries  JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provision_results (
	run_id                TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	service               TEXT NOT NULL,
	seq                   INTEGER NOT NULL,
	block_id              BIGINT NOT NULL,
	provision             INTEGER NOT NULL,
	serving_id            BIGINT NOT NULL,
	population_provided   BIGINT NOT NULL,
	population_unprovided BIGINT NOT NULL,
	population            BIGINT NOT NULL,
	PRIMARY KEY (run_id, service, block_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_services ON runs USING GIN (services);
CREATE INDEX IF NOT EXISTS idx_results_run_service ON provision_results(run_id, service, seq);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, services []string, params RunParams) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, services, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, services, string(RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{
		ID:        id,
		Services:  services,
		Status:    RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summaries []provision.Summary, reason string) error {
	summariesJSON, err := json.Marshal(summaries)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summaries")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summaries = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(completedStatus(reason)), summariesJSON, reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const pgRunColumns = `id, services, status, params, summaries, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Service != "" {
		query += fmt.Sprintf(` AND $%d = ANY(services)`, argIdx)
		args = append(args, filter.Service)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveResults upserts the table on (run_id, service, block_id), so saving a
// table twice for the same run leaves one row per block.
func (s *PostgresStore) SaveResults(ctx context.Context, runID string, table provision.Table) (int64, error) {
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        resultsTable,
		Columns:      resultColumns,
		ConflictKeys: []string{"run_id", "service", "block_id"},
	}, resultRows(runID, table))
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save %s results for run %s", table.Service, runID)
	}
	return n, nil
}

func (s *PostgresStore) GetResults(ctx context.Context, runID, service string) (provision.Table, error) {
	t := provision.Table{Service: service}

	rows, err := s.pool.Query(ctx,
		`SELECT block_id, provision, serving_id, population_provided, population_unprovided, population
		 FROM provision_results WHERE run_id = $1 AND service = $2 ORDER BY seq`,
		runID, service,
	)
	if err != nil {
		return t, eris.Wrapf(err, "postgres: get results %s/%s", runID, service)
	}
	defer rows.Close()

	for rows.Next() {
		var r provision.Result
		if err := rows.Scan(&r.BlockID, &r.Provision, &r.ServingID, &r.PopulationProvided, &r.PopulationUnprovided, &r.Population); err != nil {
			return t, eris.Wrap(err, "postgres: scan result")
		}
		t.Rows = append(t.Rows, r)
	}
	return t, eris.Wrap(rows.Err(), "postgres: get results iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var params, summaries []byte

	if err := row.Scan(&r.ID, &r.Services, &r.Status, &params, &summaries, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeRunJSON(&r, nil, params, summaries); err != nil {
		return nil, eris.Wrap(err, "postgres: decode run")
	}
	return &r, nil
}
