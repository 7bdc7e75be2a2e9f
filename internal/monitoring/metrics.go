// Package monitoring exposes batch and upstream telemetry as Prometheus
// metrics, collects enrichment coverage snapshots, and alerts on bad runs.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

// Metrics holds the Prometheus collectors for the enrichment service.
type Metrics struct {
	BatchProcessed    prometheus.Gauge
	BatchEnriched     prometheus.Gauge
	BatchSkipped      prometheus.Gauge
	BatchFailed       prometheus.Gauge
	BatchAPICallsUsed prometheus.Gauge
	BatchPending      prometheus.Gauge
	BatchState        *prometheus.GaugeVec

	UpstreamCalls    *prometheus.CounterVec
	EnrichDuration   prometheus.Histogram
	EnrichmentsTotal prometheus.Gauge
	PropertiesTotal  prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		BatchProcessed: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_processed",
			Help: "Properties admitted in the current batch run",
		}),
		BatchEnriched: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_enriched",
			Help: "Properties enriched in the current batch run",
		}),
		BatchSkipped: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_skipped",
			Help: "Properties skipped as already enriched in the current batch run",
		}),
		BatchFailed: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_failed",
			Help: "Properties that failed after retries in the current batch run",
		}),
		BatchAPICallsUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_api_calls_used",
			Help: "Census Data API calls spent by the current batch run",
		}),
		BatchPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_batch_pending",
			Help: "Properties still pending in the current batch run",
		}),
		BatchState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "demographics_batch_state",
			Help: "1 for the current batch run state, 0 otherwise",
		}, []string{"state"}),
		UpstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demographics_upstream_calls_total",
			Help: "Calls to Census services by outcome",
		}, []string{"service", "outcome"}),
		EnrichDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "demographics_enrich_duration_seconds",
			Help:    "Time to enrich one property including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		EnrichmentsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_enrichments_stored",
			Help: "Enrichment rows in the result sink",
		}),
		PropertiesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "demographics_properties_with_coordinates",
			Help: "Properties with coordinates in the property source",
		}),
	}
}

// ObserveUpstream counts one upstream call. Its signature matches the
// Census clients' call observers.
func (m *Metrics) ObserveUpstream(service, outcome string) {
	m.UpstreamCalls.WithLabelValues(service, outcome).Inc()
}

// ObserveEnrich records the wall time of one property enrichment.
func (m *Metrics) ObserveEnrich(d time.Duration) {
	m.EnrichDuration.Observe(d.Seconds())
}

// SetRun publishes a batch run's counters and state.
func (m *Metrics) SetRun(state string, counts model.RunCounts, states []string) {
	m.BatchProcessed.Set(float64(counts.Processed))
	m.BatchEnriched.Set(float64(counts.Enriched))
	m.BatchSkipped.Set(float64(counts.Skipped))
	m.BatchFailed.Set(float64(counts.Failed))
	m.BatchAPICallsUsed.Set(float64(counts.APICallsUsed))
	pending := counts.Total - counts.Processed
	if pending < 0 {
		pending = 0
	}
	m.BatchPending.Set(float64(pending))
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.BatchState.WithLabelValues(s).Set(v)
	}
}

// SetCoverage publishes store coverage totals.
func (m *Metrics) SetCoverage(st *store.Stats) {
	if st == nil {
		return
	}
	m.EnrichmentsTotal.Set(float64(st.TotalEnriched))
	m.PropertiesTotal.Set(float64(st.TotalProperties))
}
