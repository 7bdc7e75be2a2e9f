package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/demographics"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

var (
	scoreRegion  string
	scoreLimit   int
	scoreExplain bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank enriched properties by storage demand score",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		scorer, err := initScorer(cfg.Score)
		if err != nil {
			return err
		}

		recs, err := st.ListEnrichments(ctx, store.PropertyFilter{RegionCode: scoreRegion})
		if err != nil {
			return eris.Wrap(err, "list enrichments")
		}

		rows := scoreRecords(scorer, recs)
		if scoreLimit > 0 && len(rows) > scoreLimit {
			rows = rows[:scoreLimit]
		}
		printScores(cmd.OutOrStdout(), rows, scoreExplain)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreRegion, "region", "", "only score properties in this region code")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 25, "number of properties to show (0 = all)")
	scoreCmd.Flags().BoolVar(&scoreExplain, "explain", false, "print key factors for each property")
	rootCmd.AddCommand(scoreCmd)
}

type scoreRow struct {
	Key     model.PropertyKey
	Score   float64
	Label   string
	Factors demographics.Explanation
}

// scoreRecords scores and ranks records, highest score first. Records whose
// stored renter percentage disagrees with their counts are logged.
func scoreRecords(scorer *demographics.Scorer, recs []model.StoredEnrichment) []scoreRow {
	rows := make([]scoreRow, 0, len(recs))
	for _, rec := range recs {
		if rec.Result == nil {
			continue
		}
		if got := rec.Result.RecomputeRenterPercentage(); rec.Result.Housing.OccupiedUnits > 0 &&
			math.Abs(got-rec.Result.Housing.RenterPercentage) > 0.05 {
			zap.L().Warn("stored renter percentage disagrees with counts",
				zap.Stringer("property", rec.Key),
				zap.Float64("stored", rec.Result.Housing.RenterPercentage),
				zap.Float64("recomputed", got),
			)
		}
		f := demographics.FactorsFromResult(rec.Result)
		s := scorer.Score(f)
		rows = append(rows, scoreRow{
			Key:     rec.Key,
			Score:   s,
			Label:   scorer.Label(s),
			Factors: demographics.KeyFactors(f),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows
}

func printScores(out io.Writer, rows []scoreRow, explain bool) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No enriched properties.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROPERTY\tREGION\tSCORE\tLABEL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", r.Key.PropertyID, r.Key.RegionCode, r.Score, r.Label)
		if explain {
			for _, line := range factorLines(r.Factors) {
				fmt.Fprintf(tw, "\t\t\t  %s\n", line)
			}
		}
	}
	_ = tw.Flush()
}

func factorLines(e demographics.Explanation) []string {
	var lines []string
	for _, s := range e.Positive {
		lines = append(lines, "+ "+s)
	}
	for _, s := range e.Negative {
		lines = append(lines, "- "+s)
	}
	for _, s := range e.Neutral {
		lines = append(lines, "~ "+strings.TrimSpace(s))
	}
	return lines
}
