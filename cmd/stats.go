package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/provision"
	"github.com/sells-group/provision-cli/internal/report"
)

var (
	statsCity   cityFlags
	statsLocale string
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the provision summary without writing result tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		lang, err := report.ParseLocale(statsLocale)
		if err != nil {
			return err
		}

		src, err := statsCity.sources()
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

		outcomes, runErr := runner.RunAll(ctx, city.Model, statsCity.serviceList(), city.Overrides, cfg.Provision.Concurrency)
		if runErr != nil {
			zap.L().Warn("stats: some services failed", zap.Error(runErr))
		}
		summaries := summariesOf(provision.SortedOutcomes(outcomes))

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summaries); err != nil {
				return err
			}
		} else {
			report.PrintSummary(os.Stdout, summaries, lang)
		}
		return runErr
	},
}

func init() {
	statsCity.register(statsCmd)
	statsCmd.Flags().StringVar(&statsLocale, "locale", "en", "number formatting locale (BCP 47 tag)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print summaries as JSON")
	rootCmd.AddCommand(statsCmd)
}
