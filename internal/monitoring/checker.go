package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/config"
)

// Checker refreshes coverage metrics in the background.
type Checker struct {
	collector *Collector
	cfg       config.MonitoringConfig
}

// NewChecker creates a background coverage checker.
func NewChecker(collector *Collector, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting coverage checker", zap.Duration("interval", interval))

	c.check(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("coverage checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect coverage", zap.Error(err))
		return
	}
	log.Debug("monitoring: coverage refreshed",
		zap.Int64("properties", snap.Stats.TotalProperties),
		zap.Int64("enriched", snap.Stats.TotalEnriched),
		zap.Float64("completion_pct", snap.Stats.CompletionPct),
	)
}
