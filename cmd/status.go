package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/demographics-cli/internal/monitoring"
	"github.com/sells-group/demographics-cli/internal/store"
)

var statusTop int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enrichment coverage, averages and per-region completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st, nil).Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "collect status")
		}

		printStatus(cmd.OutOrStdout(), snap, statusTop)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusTop, "top", 10, "number of regions to list (0 = all)")
	rootCmd.AddCommand(statusCmd)
}

func printStatus(out io.Writer, snap *monitoring.StatusSnapshot, top int) {
	p := message.NewPrinter(language.English)
	s := snap.Stats

	p.Fprintf(out, "Properties with coordinates: %d\n", s.TotalProperties)
	p.Fprintf(out, "Enriched:                    %d (%.1f%%)\n", s.TotalEnriched, s.CompletionPct)
	p.Fprintf(out, "Remaining:                   %d\n", snap.Remaining)
	if s.TotalEnriched > 0 {
		fmt.Fprintln(out, "\nAverages across enriched properties:")
		p.Fprintf(out, "  Population:              %.0f\n", s.Averages.Population)
		p.Fprintf(out, "  Median household income: $%.0f\n", s.Averages.MedianHouseholdIncome)
		p.Fprintf(out, "  Renter percentage:       %.1f%%\n", s.Averages.RenterPercentage)
		p.Fprintf(out, "  Median age:              %.1f\n", s.Averages.MedianAge)
		p.Fprintf(out, "  Poverty rate:            %.1f%%\n", s.Averages.PovertyRate)
	}

	regions := append([]store.RegionStats(nil), s.Regions...)
	if len(regions) == 0 {
		return
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Properties > regions[j].Properties })
	if top > 0 && len(regions) > top {
		regions = regions[:top]
	}

	fmt.Fprintln(out, "\nRegions:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  REGION\tPROPERTIES\tENRICHED\tCOMPLETE")
	for _, r := range regions {
		p.Fprintf(tw, "  %s\t%d\t%d\t%.1f%%\n", r.RegionCode, r.Properties, r.Enriched, r.CompletionPct)
	}
	_ = tw.Flush()
}
