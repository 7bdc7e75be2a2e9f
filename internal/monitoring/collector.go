package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/store"
)

// StatusSnapshot holds a point-in-time view of enrichment coverage.
type StatusSnapshot struct {
	Stats       *store.Stats `json:"stats"`
	Remaining   int64        `json:"remaining"`
	CollectedAt time.Time    `json:"collected_at"`
}

// StatsSource abstracts the result sink's coverage query.
type StatsSource interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// Collector gathers coverage snapshots from the store.
type Collector struct {
	source  StatsSource
	metrics *Metrics
}

// NewCollector creates a new collector. metrics may be nil.
func NewCollector(source StatsSource, metrics *Metrics) *Collector {
	return &Collector{source: source, metrics: metrics}
}

// Collect gathers a coverage snapshot and publishes it to the metrics.
func (c *Collector) Collect(ctx context.Context) (*StatusSnapshot, error) {
	st, err := c.source.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect stats")
	}

	snap := &StatusSnapshot{
		Stats:       st,
		Remaining:   st.TotalProperties - st.TotalEnriched,
		CollectedAt: time.Now().UTC(),
	}
	if snap.Remaining < 0 {
		snap.Remaining = 0
	}
	if c.metrics != nil {
		c.metrics.SetCoverage(st)
	}
	return snap, nil
}
