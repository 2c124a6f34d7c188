package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
	"github.com/sells-group/provision-cli/internal/store"
)

type matrixPayload struct {
	IDs   []int       `json:"ids"`
	Costs [][]float64 `json:"costs"`
}

// provisionRequest carries a complete city inline.
type provisionRequest struct {
	Blocks     []provision.Block               `json:"blocks"`
	Matrix     matrixPayload                   `json:"matrix"`
	Facilities map[string][]provision.Facility `json:"facilities"`
	Services   []string                        `json:"services,omitempty"`
	Overrides  []provision.Override            `json:"overrides,omitempty"`
	Record     bool                            `json:"record,omitempty"`
	OmitRows   bool                            `json:"omit_rows,omitempty"`
}

type serviceResult struct {
	Service       string             `json:"service"`
	Standard      float64            `json:"standard"`
	Summary       provision.Summary  `json:"summary"`
	ProvisionRate float64            `json:"provision_rate"`
	Rows          []provision.Result `json:"rows,omitempty"`
}

type provisionResponse struct {
	RunID   string          `json:"run_id,omitempty"`
	Results []serviceResult `json:"results"`
	Errors  []string        `json:"errors,omitempty"`
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	model, err := buildModel(req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	services := req.Services
	if len(services) == 0 {
		services = model.ServiceTypes()
	}
	if len(services) == 0 {
		writeError(w, http.StatusBadRequest, "no services requested and no facilities given")
		return
	}

	ctx := r.Context()
	var run *store.Run
	if req.Record && s.store != nil {
		run, err = s.store.CreateRun(ctx, services, store.RunParams{Overrides: len(req.Overrides), Origin: "api"})
		if err != nil {
			zap.L().Error("api: create run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not record run")
			return
		}
	}

	outcomes, runErr := s.runner.RunAll(ctx, model, services, req.Overrides, s.concurrency)
	if len(outcomes) == 0 && runErr != nil {
		s.failRun(ctx, run, runErr)
		writeError(w, statusFor(runErr), runErr.Error())
		return
	}

	sorted := provision.SortedOutcomes(outcomes)
	resp := provisionResponse{Results: make([]serviceResult, 0, len(sorted))}
	for _, out := range sorted {
		res := serviceResult{
			Service:       out.Service,
			Standard:      out.Standard,
			Summary:       out.Summary,
			ProvisionRate: out.Summary.ProvisionRate(),
		}
		if !req.OmitRows {
			res.Rows = out.Table.Rows
		}
		resp.Results = append(resp.Results, res)
	}
	resp.Errors = splitErrors(runErr)

	if run != nil {
		if err := store.RecordOutcomes(ctx, s.store, run.ID, sorted, runErr); err != nil {
			zap.L().Error("api: record run", zap.String("run_id", run.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not record run results")
			return
		}
		resp.RunID = run.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

func buildModel(req provisionRequest) (*provision.CityModel, error) {
	matrix, err := provision.NewAccessibilityMatrix(req.Matrix.IDs, req.Matrix.Costs)
	if err != nil {
		return nil, err
	}
	return provision.NewCityModel(req.Blocks, matrix, req.Facilities)
}

func (s *Server) failRun(ctx context.Context, run *store.Run, cause error) {
	if run == nil {
		return
	}
	if err := s.store.FailRun(ctx, run.ID, cause.Error()); err != nil {
		zap.L().Error("api: fail run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  store.RunStatus(q.Get("status")),
		Service: q.Get("service"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset: "+err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGetResults returns the stored tables of a run, all services unless
// ?service= narrows it down.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	services := run.Services
	if svc := r.URL.Query().Get("service"); svc != "" {
		services = []string{svc}
	}

	tables := make([]provision.Table, 0, len(services))
	for _, svc := range services {
		t, err := s.store.GetResults(r.Context(), run.ID, svc)
		if err != nil {
			zap.L().Error("api: get results", zap.String("run_id", run.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load results")
			return
		}
		if t.Rows == nil {
			t.Rows = []provision.Result{}
		}
		tables = append(tables, t)
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return nil, false
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return nil, false
	}
	return run, true
}

// statusFor maps an error to an HTTP status by its sentinel class. Joined
// errors take the most severe class they contain.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provision.ErrStructural):
		return http.StatusInternalServerError
	case errors.Is(err, provision.ErrDataConsistency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provision.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// splitErrors flattens an errors.Join result into one message per error.
func splitErrors(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("must be a non-negative integer, got %q", v)
	}
	return n, nil
}
