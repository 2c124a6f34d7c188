package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provision-cli/internal/provision"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var runCols = []string{"id", "services", "status", "params", "summaries", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS provision_results`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), []string{"schools"}, "running", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), []string{"schools"}, RunParams{Origin: "api"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, services, status, params, summaries, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).AddRow(
			"run-1", []string{"schools"}, "complete",
			[]byte(`{"neighbor_order":"cost"}`), []byte(`[{"service":"schools","living_blocks":2}]`),
			"", now, now.Add(time.Second),
		))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.Equal(t, []string{"schools"}, run.Services)
	assert.Equal(t, "cost", run.Params.NeighborOrder)
	require.Len(t, run.Summaries, 1)
	assert.Equal(t, 2, run.Summaries[0].LivingBlocks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, summaries = \$2`).
		WithArgs("complete", pgxmock.AnyArg(), "", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "gone", []provision.Summary{{Service: "schools"}}, "")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_Partial(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, summaries = \$2, error = \$3`).
		WithArgs("partial", pgxmock.AnyArg(), "bogus: unknown service", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", []provision.Summary{{Service: "schools"}}, "bogus: unknown service")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, error = \$2`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND status = \$1 AND \$2 = ANY\(services\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("complete", "schools", 10, 5).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("a", []string{"schools"}, "complete", []byte(`{}`), nil, "", now, now).
			AddRow("b", []string{"schools", "cinemas"}, "complete", []byte(`{}`), nil, "", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: RunStatusComplete, Service: "schools", Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[1].ID)
	assert.Empty(t, runs[0].Summaries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_provision_results"}, resultColumns).WillReturnResult(2)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`ON CONFLICT \("run_id", "service", "block_id"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	table := provision.Table{Service: "schools", Rows: []provision.Result{{BlockID: 1}, {BlockID: 2, Provision: 100}}}
	n, err := s.SaveResults(context.Background(), "run-1", table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := s.SaveResults(context.Background(), "run-1", provision.Table{Service: "schools", Rows: []provision.Result{{BlockID: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save schools results for run run-1")
}

func TestPostgresStore_GetResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM provision_results WHERE run_id = \$1 AND service = \$2 ORDER BY seq`).
		WithArgs("run-1", "schools").
		WillReturnRows(pgxmock.NewRows([]string{"block_id", "provision", "serving_id", "population_provided", "population_unprovided", "population"}).
			AddRow(2, 48, 1, 16, 17, 33).
			AddRow(1, 0, 0, 0, 0, 0))

	got, err := s.GetResults(context.Background(), "run-1", "schools")
	require.NoError(t, err)
	assert.Equal(t, provision.Table{
		Service: "schools",
		Rows: []provision.Result{
			{BlockID: 2, Provision: 48, ServingID: 1, PopulationProvided: 16, PopulationUnprovided: 17, Population: 33},
			{BlockID: 1},
		},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRows(t *testing.T) {
	rows := resultRows("r", provision.Table{Service: "schools", Rows: []provision.Result{{BlockID: 7, Provision: 5, ServingID: 3, PopulationProvided: 1, PopulationUnprovided: 2, Population: 3}}})
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"r", "schools", 0, 7, 5, 3, 1, 2, 3}, rows[0])
	assert.Len(t, rows[0], len(resultColumns))
}
