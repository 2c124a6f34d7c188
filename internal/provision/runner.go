package provision

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one service-type run.
type Outcome struct {
	Service  string
	Standard float64
	Graph    *ServiceGraph
	Table    Table
	Summary  Summary
	Duration time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEngineOptions passes options to every Engine the Runner creates.
func WithEngineOptions(opts ...EngineOption) RunnerOption {
	return func(r *Runner) { r.engineOpts = append(r.engineOpts, opts...) }
}

// Runner builds, allocates and projects service graphs for a city model.
type Runner struct {
	standards  Standards
	engineOpts []EngineOption
}

// NewRunner creates a Runner using the given standards registry.
func NewRunner(standards Standards, opts ...RunnerOption) *Runner {
	r := &Runner{standards: standards}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Standards returns the registry the runner resolves service types against.
func (r *Runner) Standards() Standards { return r.standards }

// Run computes provision for one service type on a fresh graph.
func (r *Runner) Run(ctx context.Context, model *CityModel, service string, overrides []Override) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "provision: %s run cancelled", service)
	}
	if model == nil {
		return nil, eris.Wrap(ErrDataConsistency, "provision: city model is required")
	}

	standard, err := r.standards.Lookup(service)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(standard, r.engineOpts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	g, err := BuildGraph(model.Input(service, overrides), service)
	if err != nil {
		return nil, eris.Wrapf(err, "provision: build %s graph", service)
	}
	if err := engine.Provide(g); err != nil {
		return nil, eris.Wrapf(err, "provision: allocate %s", service)
	}

	out := &Outcome{
		Service:  service,
		Standard: standard,
		Graph:    g,
		Table:    Project(model.Blocks(), g),
		Summary:  Summarize(g),
		Duration: time.Since(start),
	}

	zap.L().Info("provision: service complete",
		zap.String("service", service),
		zap.Float64("standard", standard),
		zap.Int("facilities", out.Summary.FacilityBlocks),
		zap.Int("living_blocks", out.Summary.LivingBlocks),
		zap.Int("served_blocks", out.Summary.ServedBlocks),
		zap.Float64("provision_rate", out.Summary.ProvisionRate()),
		zap.Duration("elapsed", out.Duration),
	)
	return out, nil
}

// RunAll runs every service type independently, at most concurrency at a
// time. An empty services list means every service type of the model. A failed
// service does not stop the others: the successful outcomes are returned
// together with an error naming each failure.
func (r *Runner) RunAll(ctx context.Context, model *CityModel, services []string, overrides []Override, concurrency int) (map[string]*Outcome, error) {
	if model == nil {
		return nil, eris.Wrap(ErrDataConsistency, "provision: city model is required")
	}
	if len(services) == 0 {
		services = model.ServiceTypes()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[string]*Outcome, len(services))
		failures = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, service := range services {
		g.Go(func() error {
			out, err := r.Run(ctx, model, service, overrides)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Error("provision: service failed",
					zap.String("service", service),
					zap.Error(err),
				)
				failures[service] = err
				return nil
			}
			outcomes[service] = out
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return outcomes, nil
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, eris.Wrapf(failures[name], "service %s", name))
	}
	return outcomes, errors.Join(errs...)
}

// SortedOutcomes returns the outcomes ordered by service name.
func SortedOutcomes(outcomes map[string]*Outcome) []*Outcome {
	out := make([]*Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
