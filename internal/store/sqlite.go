package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provision-cli/internal/provision"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	services   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT NOT NULL DEFAULT '{}',
	summaries  TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS provision_results (
	run_id                TEXT NOT NULL REFERENCES runs(id),
	service               TEXT NOT NULL,
	seq                   INTEGER NOT NULL,
	block_id              INTEGER NOT NULL,
	provision             INTEGER NOT NULL,
	serving_id            INTEGER NOT NULL,
	population_provided   INTEGER NOT NULL,
	population_unprovided INTEGER NOT NULL,
	population            INTEGER NOT NULL,
	PRIMARY KEY (run_id, service, block_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_results_run_service ON provision_results(run_id, service, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, services []string, params RunParams) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	servicesJSON, err := json.Marshal(services)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal services")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, services, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(servicesJSON), string(RunStatusRunning), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summaries []provision.Summary, reason string) error {
	summariesJSON, err := json.Marshal(summaries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summaries")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summaries = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(completedStatus(reason)), string(summariesJSON), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const sqliteRunColumns = `id, services, status, params, summaries, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Service != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(runs.services) WHERE json_each.value = ?)`
		args = append(args, filter.Service)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, table provision.Table) (int64, error) {
	if len(table.Rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin results tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO provision_results
		(run_id, service, seq, block_id, provision, serving_id, population_provided, population_unprovided, population)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, service, block_id) DO UPDATE SET
			seq = excluded.seq,
			provision = excluded.provision,
			serving_id = excluded.serving_id,
			population_provided = excluded.population_provided,
			population_unprovided = excluded.population_unprovided,
			population = excluded.population`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare results insert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, row := range resultRows(runID, table) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert result for run %s block %v", runID, row[3])
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit results")
	}
	return n, nil
}

func (s *SQLiteStore) GetResults(ctx context.Context, runID, service string) (provision.Table, error) {
	t := provision.Table{Service: service}

	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, provision, serving_id, population_provided, population_unprovided, population
		 FROM provision_results WHERE run_id = ? AND service = ? ORDER BY seq`,
		runID, service,
	)
	if err != nil {
		return t, eris.Wrapf(err, "sqlite: get results %s/%s", runID, service)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var r provision.Result
		if err := rows.Scan(&r.BlockID, &r.Provision, &r.ServingID, &r.PopulationProvided, &r.PopulationUnprovided, &r.Population); err != nil {
			return t, eris.Wrap(err, "sqlite: scan result")
		}
		t.Rows = append(t.Rows, r)
	}
	return t, eris.Wrap(rows.Err(), "sqlite: get results iterate")
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var servicesJSON, paramsJSON string
	var summariesJSON sql.NullString

	err := row.Scan(&r.ID, &servicesJSON, &r.Status, &paramsJSON, &summariesJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := decodeRunJSON(&r, []byte(servicesJSON), []byte(paramsJSON), []byte(summariesJSON.String)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode run")
	}
	return &r, nil
}

// decodeRunJSON fills the JSON-encoded columns of r. Empty inputs are skipped.
func decodeRunJSON(r *Run, services, params, summaries []byte) error {
	if len(services) > 0 {
		if err := json.Unmarshal(services, &r.Services); err != nil {
			return eris.Wrap(err, "unmarshal services")
		}
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return eris.Wrap(err, "unmarshal params")
		}
	}
	if len(summaries) > 0 {
		if err := json.Unmarshal(summaries, &r.Summaries); err != nil {
			return eris.Wrap(err, "unmarshal summaries")
		}
	}
	return nil
}
