package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provision-cli/internal/fetcher"
	"github.com/sells-group/provision-cli/internal/loader"
	"github.com/sells-group/provision-cli/internal/provision"
)

// cityFlags are the input flags shared by commands that load a city.
type cityFlags struct {
	blocks        string
	matrix        string
	facilities    []string
	facilitiesAll string
	overrides     string
	services      []string
	charset       string
}

func (f *cityFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.blocks, "blocks", "", "block table (CSV, XLSX or shapefile; path or http/ftp URL)")
	fs.StringVar(&f.matrix, "matrix", "", "accessibility matrix table")
	fs.StringArrayVar(&f.facilities, "facility", nil, "facility table for one service as service=path (repeatable)")
	fs.StringVar(&f.facilitiesAll, "facilities", "", "facility table with a service column")
	fs.StringVar(&f.overrides, "overrides", "", "what-if overrides file (YAML or JSON)")
	fs.StringSliceVar(&f.services, "services", nil, "service types to compute (default: config, then every service with facilities)")
	fs.StringVar(&f.charset, "charset", "", "charset of CSV inputs (default from config)")
	_ = cmd.MarkFlagRequired("blocks")
	_ = cmd.MarkFlagRequired("matrix")
}

func (f *cityFlags) sources() (loader.Sources, error) {
	facilities, err := loader.ParseFacilityFlags(f.facilities)
	if err != nil {
		return loader.Sources{}, err
	}
	charset := f.charset
	if charset == "" {
		charset = cfg.Fetch.Charset
	}
	return loader.Sources{
		Blocks:        f.blocks,
		Matrix:        f.matrix,
		Facilities:    facilities,
		FacilitiesAll: f.facilitiesAll,
		Overrides:     f.overrides,
		Charset:       charset,
	}, nil
}

// serviceList picks the requested services: flags first, then config. Empty
// means every service type of the model.
func (f *cityFlags) serviceList() []string {
	if len(f.services) > 0 {
		return f.services
	}
	return cfg.Provision.Services
}

// sourceParams describes the sources for the run record.
func sourceParams(src loader.Sources) map[string]string {
	out := map[string]string{"blocks": src.Blocks, "matrix": src.Matrix}
	for svc, uri := range src.Facilities {
		out["facility."+svc] = uri
	}
	if src.FacilitiesAll != "" {
		out["facilities"] = src.FacilitiesAll
	}
	if src.Overrides != "" {
		out["overrides"] = src.Overrides
	}
	return out
}

func loadCity(ctx context.Context, src loader.Sources) (*loader.City, error) {
	resolver := fetcher.NewResolver(fetcher.HTTPOptions{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		UserAgent:  cfg.Fetch.UserAgent,
	}, cfg.Fetch.TempDir)

	city, err := loader.LoadCity(ctx, resolver, src)
	if err != nil {
		return nil, eris.Wrap(err, "load city")
	}
	return city, nil
}

// newRunner builds a Runner from the provision section of the config.
func newRunner() (*provision.Runner, error) {
	order, err := provision.ParseNeighborOrder(cfg.Provision.NeighborOrder)
	if err != nil {
		return nil, err
	}
	opts := []provision.EngineOption{provision.WithNeighborOrder(order)}
	if cfg.Provision.Epsilon > 0 {
		opts = append(opts, provision.WithEpsilon(cfg.Provision.Epsilon))
	}
	standards := provision.DefaultStandards().Merge(cfg.Provision.Standards)
	return provision.NewRunner(standards, provision.WithEngineOptions(opts...)), nil
}
