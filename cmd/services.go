package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/provision-cli/internal/provision"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List service types and their per-1000 demand standards",
	RunE: func(cmd *cobra.Command, args []string) error {
		standards := provision.DefaultStandards().Merge(cfg.Provision.Standards)
		formatServices(os.Stdout, standards, cfg.Provision.Standards)
		return nil
	},
}

// formatServices writes the standards table. Entries present in configured
// are marked as coming from the config file.
func formatServices(out io.Writer, standards provision.Standards, configured map[string]float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tPER_1000\tSOURCE")
	_, _ = fmt.Fprintln(w, "-------\t--------\t------")
	for _, name := range standards.Services() {
		source := "default"
		if _, ok := configured[name]; ok {
			source = "config"
		}
		_, _ = fmt.Fprintf(w, "%s\t%g\t%s\n", name, standards[name], source)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}
