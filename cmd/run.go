package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
	"github.com/sells-group/provision-cli/internal/report"
	"github.com/sells-group/provision-cli/internal/store"
)

var (
	runCity   cityFlags
	runOutDir string
	runXLSX   string
	runRecord bool
	runLocale string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute provision for one or more service types",
	Long: "Loads the block table, accessibility matrix and facility tables, computes provision for every requested " +
		"service type and writes one CSV per service and/or an XLSX workbook. A failed service does not stop the others.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		src, err := runCity.sources()
		if err != nil {
			return err
		}
		city, err := loadCity(ctx, src)
		if err != nil {
			return err
		}
		runner, err := newRunner()
		if err != nil {
			return err
		}
		lang, err := report.ParseLocale(runLocale)
		if err != nil {
			return err
		}

		services := runCity.serviceList()
		if len(services) == 0 {
			services = city.Model.ServiceTypes()
		}
		if len(services) == 0 {
			return eris.New("run: no services requested and no facility tables given")
		}

		var (
			st  store.Store
			run *store.Run
		)
		if runRecord {
			st, err = openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			run, err = st.CreateRun(ctx, services, store.RunParams{
				Sources:       sourceParams(src),
				NeighborOrder: cfg.Provision.NeighborOrder,
				Overrides:     len(city.Overrides),
				Origin:        "cli",
			})
			if err != nil {
				return eris.Wrap(err, "run: create run")
			}
		}

		outcomes, runErr := runner.RunAll(ctx, city.Model, services, city.Overrides, cfg.Provision.Concurrency)
		if len(outcomes) == 0 && runErr != nil {
			failRecordedRun(ctx, st, run, runErr)
			return runErr
		}

		sorted := provision.SortedOutcomes(outcomes)
		if err := writeOutputs(sorted); err != nil {
			failRecordedRun(ctx, st, run, err)
			return err
		}
		report.PrintSummary(os.Stdout, summariesOf(sorted), lang)

		if run != nil {
			if err := store.RecordOutcomes(ctx, st, run.ID, sorted, runErr); err != nil {
				return eris.Wrap(err, "run: record results")
			}
			zap.L().Info("run: recorded", zap.String("run_id", run.ID))
		}

		return runErr
	},
}

// failRecordedRun marks a recorded run failed. It is a no-op when the run is
// not recorded.
func failRecordedRun(ctx context.Context, st store.Store, run *store.Run, cause error) {
	if run == nil {
		return
	}
	if err := st.FailRun(ctx, run.ID, cause.Error()); err != nil {
		zap.L().Error("run: mark run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func writeOutputs(outcomes []*provision.Outcome) error {
	tables := make([]provision.Table, 0, len(outcomes))
	for _, out := range outcomes {
		tables = append(tables, out.Table)
	}

	if runOutDir != "" {
		paths, err := report.ExportCSV(runOutDir, tables)
		if err != nil {
			return err
		}
		zap.L().Info("run: wrote csv", zap.Strings("files", paths))
	}
	if runXLSX != "" {
		if err := report.WriteXLSX(runXLSX, tables, summariesOf(outcomes)); err != nil {
			return err
		}
		zap.L().Info("run: wrote workbook", zap.String("path", runXLSX))
	}
	return nil
}

func summariesOf(outcomes []*provision.Outcome) []provision.Summary {
	out := make([]provision.Summary, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Summary)
	}
	return out
}

func init() {
	runCity.register(runCmd)
	runCmd.Flags().StringVar(&runOutDir, "out", "", "directory for one <service>.csv per service")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "write all result tables to this XLSX workbook")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "record the run and its results in the store")
	runCmd.Flags().StringVar(&runLocale, "locale", "en", "number formatting locale of the summary (BCP 47 tag)")
	rootCmd.AddCommand(runCmd)
}
