package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/batch"
	"github.com/sells-group/demographics-cli/internal/config"
	"github.com/sells-group/demographics-cli/internal/monitoring"
)

var (
	batchRegion string
	batchLimit  int
	batchRadius float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich every property that has no demographics yet, within the daily quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrichEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		bc := batchConfig(cfg.Batch)
		bc.RegionCode = batchRegion
		bc.Limit = batchLimit
		if batchRadius > 0 {
			bc.RadiusMiles = batchRadius
		}

		report, err := runBatch(ctx, env, bc)
		if report != nil {
			fmt.Fprint(cmd.OutOrStdout(), batch.FormatSummary(report))
			notifyRun(context.WithoutCancel(ctx), cfg.Monitoring, report)
		}
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchRegion, "region", "", "only enrich properties in this region code")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of pending properties to take (0 = no limit)")
	batchCmd.Flags().Float64Var(&batchRadius, "radius", 0, "catchment radius in miles (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// batchConfig converts the config file section to orchestrator settings.
func batchConfig(bc config.BatchConfig) batch.Config {
	return batch.Config{
		DailyQuota:       bc.DailyQuota,
		CallsPerProperty: bc.CallsPerProperty,
		BatchSize:        bc.Size,
		Concurrency:      bc.Concurrency,
		InterBatchDelay:  time.Duration(bc.InterBatchDelayMs) * time.Millisecond,
		MaxRetries:       bc.MaxRetries,
		RetryDelay:       time.Duration(bc.RetryDelayMs) * time.Millisecond,
		RadiusMiles:      bc.RadiusMiles,
		ProgressEvery:    bc.ProgressEvery,
		ErrorLogDir:      bc.ErrorLogDir,
	}
}

func runBatch(ctx context.Context, env *enrichEnv, bc batch.Config) (*batch.RunReport, error) {
	o := batch.New(bc, env.Store, env.Store, env.Enricher,
		batch.WithMetrics(env.Metrics),
		batch.WithCallCounter(env.Fetcher),
	)
	return o.Run(ctx)
}

// notifyRun evaluates a finished run and sends any alerts.
func notifyRun(ctx context.Context, mc config.MonitoringConfig, report *batch.RunReport) {
	alerter := monitoring.NewAlerter(mc)
	alerts := alerter.Evaluate(report.Outcome())
	if len(alerts) == 0 {
		return
	}
	sent := alerter.SendAlerts(ctx, alerts)
	zap.L().Info("batch alerts", zap.Int("alerts", len(alerts)), zap.Int("sent", sent))
}
