package batch

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/demographics-cli/internal/model"
)

// printer renders counts with thousands separators.
var printer = message.NewPrinter(language.English)

// rateAndETA returns properties per minute and the estimated time left.
// ETA is negative when no rate can be computed yet.
func rateAndETA(c model.RunCounts, elapsed time.Duration) (float64, time.Duration) {
	if elapsed <= 0 || c.Processed == 0 {
		return 0, -1
	}
	perMin := float64(c.Processed) / elapsed.Minutes()
	remaining := c.Total - c.Processed
	if remaining <= 0 {
		return perMin, 0
	}
	eta := time.Duration(float64(remaining) / perMin * float64(time.Minute))
	return perMin, eta.Round(time.Second)
}

// FormatProgress renders a one-line progress summary.
func FormatProgress(c model.RunCounts, elapsed time.Duration) string {
	perMin, eta := rateAndETA(c, elapsed)
	etaStr := "unknown"
	if eta >= 0 {
		etaStr = eta.String()
	}
	return printer.Sprintf("%d/%d processed (%.1f%%) | enriched %d | skipped %d | failed %d | api calls %d | %.1f/min | ETA %s",
		c.Processed, c.Total, model.RoundedPercent(int(c.Processed), int(c.Total)),
		c.Enriched, c.Skipped, c.Failed, c.APICallsUsed, perMin, etaStr)
}

// FormatSummary renders the end-of-run summary printed by the CLI.
func FormatSummary(r *RunReport) string {
	var b strings.Builder
	c := r.Counts
	b.WriteString(printer.Sprintf("Run %s finished: %s\n", r.RunID, r.State))
	b.WriteString(printer.Sprintf("  Pending at start: %d (already enriched: %d)\n", r.Diff.Pending, r.Diff.AlreadyEnriched))
	b.WriteString(printer.Sprintf("  Processed:        %d\n", c.Processed))
	b.WriteString(printer.Sprintf("  Enriched:         %d\n", c.Enriched))
	b.WriteString(printer.Sprintf("  Skipped:          %d\n", c.Skipped))
	b.WriteString(printer.Sprintf("  Failed:           %d\n", c.Failed))
	b.WriteString(printer.Sprintf("  API calls used:   %d\n", c.APICallsUsed))
	b.WriteString(printer.Sprintf("  Duration:         %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second)))
	if r.ErrorLogPath != "" {
		b.WriteString(printer.Sprintf("  Error log:        %s\n", r.ErrorLogPath))
	}
	switch r.State {
	case StateQuotaExhausted:
		b.WriteString(printer.Sprintf("Daily quota reached with %d properties pending. Run again later to resume.\n", c.Total-c.Processed))
	case StateInterrupted:
		b.WriteString("Interrupted. Run again to resume where this run stopped.\n")
	}
	return b.String()
}
