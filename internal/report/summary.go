package report

import (
	"io"
	"math"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/provision-cli/internal/provision"
)

// ParseLocale resolves a BCP 47 tag such as "en" or "ru-RU" for number
// formatting. An empty tag means English.
func ParseLocale(tag string) (language.Tag, error) {
	if tag == "" {
		return language.English, nil
	}
	t, err := language.Parse(tag)
	if err != nil {
		return language.Und, eris.Wrapf(err, "report: invalid locale %q", tag)
	}
	return t, nil
}

// PrintSummary writes one line per service with locale-grouped numbers.
func PrintSummary(out io.Writer, summaries []provision.Summary, lang language.Tag) {
	p := message.NewPrinter(lang)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	_, _ = p.Fprintln(w, "SERVICE\tBLOCKS\tLIVING\tFACILITIES\tSERVED\tPOPULATION\tPROVIDED\tUNPROVIDED\tPROVISION\tCAPACITY LEFT\t")
	for _, s := range summaries {
		_, _ = p.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.1f%%\t%d\t\n",
			s.Service,
			s.TotalBlocks,
			s.LivingBlocks,
			s.FacilityBlocks,
			s.ServedBlocks,
			whole(s.TotalPopulation),
			whole(s.ProvidedPopulation),
			whole(s.UnprovidedPopulation),
			s.ProvisionRate(),
			whole(s.RemainingCapacity),
		)
	}
	_ = w.Flush()

	for _, s := range summaries {
		if s.MalformedBlocks > 0 {
			_, _ = p.Fprintf(out, "warning: %s graph has %d blocks without population data\n", s.Service, s.MalformedBlocks)
		}
	}
}

func whole(v float64) int64 {
	return int64(math.Floor(v))
}
