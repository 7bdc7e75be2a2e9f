package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/config"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

func TestMetrics_SetRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	states := []string{"running", "completed"}

	m.SetRun("running", model.RunCounts{Total: 10, Processed: 4, Enriched: 3, Failed: 1, APICallsUsed: 12}, states)

	assert.InDelta(t, 4, testutil.ToFloat64(m.BatchProcessed), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.BatchEnriched), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchFailed), 1e-9)
	assert.InDelta(t, 12, testutil.ToFloat64(m.BatchAPICallsUsed), 1e-9)
	assert.InDelta(t, 6, testutil.ToFloat64(m.BatchPending), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchState.WithLabelValues("running")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.BatchState.WithLabelValues("completed")), 1e-9)

	m.SetRun("completed", model.RunCounts{Total: 10, Processed: 10}, states)
	assert.InDelta(t, 0, testutil.ToFloat64(m.BatchState.WithLabelValues("running")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchState.WithLabelValues("completed")), 1e-9)
}

func TestMetrics_ObserveUpstream(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveUpstream("acs", "ok")
	m.ObserveUpstream("acs", "ok")
	m.ObserveUpstream("geocoder", "error")

	assert.InDelta(t, 2, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("acs", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("geocoder", "error")), 1e-9)

	m.ObserveEnrich(250 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.EnrichDuration))
}

type stubStats struct {
	st  *store.Stats
	err error
}

func (s stubStats) Stats(context.Context) (*store.Stats, error) { return s.st, s.err }

func TestCollector_Collect(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	c := NewCollector(stubStats{st: &store.Stats{TotalProperties: 120, TotalEnriched: 100, CompletionPct: 83.3}}, m)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), snap.Remaining)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.InDelta(t, 100, testutil.ToFloat64(m.EnrichmentsTotal), 1e-9)
	assert.InDelta(t, 120, testutil.ToFloat64(m.PropertiesTotal), 1e-9)
}

func TestCollector_Error(t *testing.T) {
	c := NewCollector(stubStats{err: errors.New("db down")}, nil)
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: collect stats")
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	c := NewCollector(stubStats{st: &store.Stats{TotalProperties: 5, TotalEnriched: 5}}, m)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewChecker(c, config.MonitoringConfig{CheckIntervalSecs: 3600}).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return testutil.ToFloat64(m.EnrichmentsTotal) == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop")
	}
}
