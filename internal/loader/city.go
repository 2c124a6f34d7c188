package loader

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provision-cli/internal/provision"
)

// Opener resolves a source URI to a local file path.
type Opener interface {
	Open(ctx context.Context, uri string) (string, error)
}

// Sources names the inputs of a city model. Facilities maps a service type to
// its facility table; FacilitiesAll is one table with a service column. Both
// may be set.
type Sources struct {
	Blocks        string
	Matrix        string
	Facilities    map[string]string
	FacilitiesAll string
	Overrides     string
	Charset       string // encoding of CSV sources; empty means UTF-8
}

// City is a loaded city model plus the scenario overrides read with it.
type City struct {
	Model     *provision.CityModel
	Overrides []provision.Override
}

// LoadCity resolves and parses every source, then assembles a validated city
// model. Facility tables are read concurrently.
func LoadCity(ctx context.Context, opener Opener, src Sources) (*City, error) {
	if src.Blocks == "" || src.Matrix == "" {
		return nil, eris.New("loader: blocks and matrix sources are required")
	}

	blocks, err := loadBlocks(ctx, opener, src.Blocks, src.Charset)
	if err != nil {
		return nil, err
	}

	matrixRows, err := readSource(ctx, opener, src.Matrix, src.Charset)
	if err != nil {
		return nil, err
	}
	matrix, err := ParseMatrix(matrixRows)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		services = make(map[string][]provision.Facility)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	if src.FacilitiesAll != "" {
		g.Go(func() error {
			rows, err := readSource(gctx, opener, src.FacilitiesAll, src.Charset)
			if err != nil {
				return err
			}
			byService, err := ParseFacilitiesByService(rows)
			if err != nil {
				return eris.Wrapf(err, "loader: %s", src.FacilitiesAll)
			}
			mu.Lock()
			defer mu.Unlock()
			for svc, fs := range byService {
				services[svc] = append(services[svc], fs...)
			}
			return nil
		})
	}
	for service, uri := range src.Facilities {
		g.Go(func() error {
			rows, err := readSource(gctx, opener, uri, src.Charset)
			if err != nil {
				return err
			}
			fs, err := ParseFacilities(rows, service)
			if err != nil {
				return eris.Wrapf(err, "loader: %s", uri)
			}
			mu.Lock()
			defer mu.Unlock()
			services[service] = append(services[service], fs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	model, err := provision.NewCityModel(blocks, matrix, services)
	if err != nil {
		return nil, err
	}

	city := &City{Model: model}
	if src.Overrides != "" {
		path, err := opener.Open(ctx, src.Overrides)
		if err != nil {
			return nil, err
		}
		if city.Overrides, err = LoadOverrides(path); err != nil {
			return nil, err
		}
	}

	names := model.ServiceTypes()
	zap.L().Info("loader: city loaded",
		zap.Int("blocks", len(blocks)),
		zap.Int("matrix_size", matrix.Len()),
		zap.Strings("services", names),
		zap.Int("overrides", len(city.Overrides)),
	)
	return city, nil
}

// ParseFacilityFlags turns "service=path" pairs into a Facilities map.
func ParseFacilityFlags(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		svc, uri, ok := strings.Cut(p, "=")
		svc = strings.ToLower(strings.TrimSpace(svc))
		if !ok || svc == "" || uri == "" {
			return nil, eris.Errorf("loader: facility source %q must look like service=path", p)
		}
		if _, dup := out[svc]; dup {
			return nil, eris.Errorf("loader: facility source for %q given twice", svc)
		}
		out[svc] = uri
	}
	return out, nil
}

func loadBlocks(ctx context.Context, opener Opener, uri, charset string) ([]provision.Block, error) {
	path, err := opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return LoadShapefileBlocks(path)
	}
	rows, err := ReadTableEncoded(ctx, path, charset)
	if err != nil {
		return nil, err
	}
	blocks, err := ParseBlocks(rows)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: %s", uri)
	}
	return blocks, nil
}

func readSource(ctx context.Context, opener Opener, uri, charset string) ([][]string, error) {
	path, err := opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	return ReadTableEncoded(ctx, path, charset)
}
