// Package store records provision runs and their per-block results.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records what a run was computed from.
type RunParams struct {
	Sources       map[string]string `json:"sources,omitempty"`
	NeighborOrder string            `json:"neighbor_order,omitempty"`
	Overrides     int               `json:"overrides,omitempty"`
	Origin        string            `json:"origin,omitempty"` // "cli" or "api"
}

// Run is one invocation of the runner over a set of service types.
type Run struct {
	ID        string              `json:"id"`
	Services  []string            `json:"services"`
	Status    RunStatus           `json:"status"`
	Params    RunParams           `json:"params"`
	Summaries []provision.Summary `json:"summaries,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  RunStatus `json:"status,omitempty"`
	Service string    `json:"service,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store persists runs and result tables.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, services []string, params RunParams) (*Run, error)
	// CompleteRun stores the summaries of the services that succeeded. A
	// non-empty reason marks the run partial and keeps the failures in Error.
	CompleteRun(ctx context.Context, runID string, summaries []provision.Summary, reason string) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Results. SaveResults replaces rows with the same (run, service, block).
	SaveResults(ctx context.Context, runID string, table provision.Table) (int64, error)
	GetResults(ctx context.Context, runID, service string) (provision.Table, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}

// resultColumns is the column order of provision_results rows.
var resultColumns = []string{
	"run_id", "service", "seq", "block_id", "provision", "serving_id",
	"population_provided", "population_unprovided", "population",
}

func resultRows(runID string, t provision.Table) [][]any {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = []any{
			runID, t.Service, i, r.BlockID, r.Provision, r.ServingID,
			r.PopulationProvided, r.PopulationUnprovided, r.Population,
		}
	}
	return rows
}

// RecordOutcomes saves the result table of every outcome and completes the
// run. A non-nil runErr names the services that failed and marks the run
// partial. If a table cannot be saved the run is marked failed.
func RecordOutcomes(ctx context.Context, s Store, runID string, outcomes []*provision.Outcome, runErr error) error {
	summaries := make([]provision.Summary, 0, len(outcomes))
	for _, out := range outcomes {
		if _, err := s.SaveResults(ctx, runID, out.Table); err != nil {
			if ferr := s.FailRun(ctx, runID, err.Error()); ferr != nil {
				zap.L().Error("store: mark run failed", zap.String("run_id", runID), zap.Error(ferr))
			}
			return err
		}
		summaries = append(summaries, out.Summary)
	}

	var reason string
	if runErr != nil {
		reason = runErr.Error()
	}
	return s.CompleteRun(ctx, runID, summaries, reason)
}

// completedStatus is the terminal status of a run finished with reason.
func completedStatus(reason string) RunStatus {
	if reason != "" {
		return RunStatusPartial
	}
	return RunStatusComplete
}
