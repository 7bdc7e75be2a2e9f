package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/batch"
	"github.com/sells-group/demographics-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the census enrichment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrichEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		a := &api{
			store:    env.Store,
			enricher: env.Enricher,
			scorer:   env.Scorer,
			registry: env.Registry,
			runBatch: func(ctx context.Context, regionCode string, limit int, radiusMiles float64) (*batch.RunReport, error) {
				bc := batchConfig(cfg.Batch)
				bc.RegionCode = regionCode
				bc.Limit = limit
				if radiusMiles > 0 {
					bc.RadiusMiles = radiusMiles
				}
				report, err := runBatch(ctx, env, bc)
				if report != nil {
					notifyRun(context.WithoutCancel(ctx), cfg.Monitoring, report)
				}
				return report, err
			},
		}

		checker := monitoring.NewChecker(monitoring.NewCollector(env.Store, env.Metrics), cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
