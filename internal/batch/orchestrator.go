// Package batch drives bulk enrichment runs: diff the property source
// against the result sink, then enrich pending properties in fixed-size
// batches under a daily call quota, with bounded concurrency and retries.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/monitoring"
	"github.com/sells-group/demographics-cli/internal/resilience"
	"github.com/sells-group/demographics-cli/internal/store"
)

// State is the lifecycle state of a run.
type State string

const (
	StateLoading        State = "loading"
	StateRunning        State = "running"
	StateQuotaExhausted State = "quota_exhausted"
	StateCompleted      State = "completed"
	StateFatal          State = "fatal"
	StateInterrupted    State = "interrupted"
)

// AllStates lists every state, for metrics labels.
var AllStates = []string{
	string(StateLoading), string(StateRunning), string(StateQuotaExhausted),
	string(StateCompleted), string(StateFatal), string(StateInterrupted),
}

// Config controls a batch run.
type Config struct {
	DailyQuota       int
	CallsPerProperty int
	BatchSize        int
	Concurrency      int
	InterBatchDelay  time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RadiusMiles      float64
	ProgressEvery    int
	ErrorLogDir      string

	// RegionCode restricts the run to one region when set.
	RegionCode string
	// Limit caps the number of pending properties taken into the run.
	Limit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DailyQuota:       50000,
		CallsPerProperty: 3,
		BatchSize:        50,
		Concurrency:      10,
		InterBatchDelay:  2 * time.Second,
		MaxRetries:       3,
		RetryDelay:       5 * time.Second,
		RadiusMiles:      3,
		ProgressEvery:    10,
		ErrorLogDir:      ".",
	}
}

// MaxProperties is the number of properties the quota admits per run.
func (c Config) MaxProperties() int64 {
	if c.CallsPerProperty <= 0 {
		return int64(c.DailyQuota)
	}
	return int64(c.DailyQuota / c.CallsPerProperty)
}

// Enricher enriches a single property that is expected to be new.
type Enricher interface {
	EnrichNew(ctx context.Context, p model.Property, radiusMiles float64) (*model.EnrichmentResult, error)
	Ping(ctx context.Context) error
}

// CallCounter reports upstream data calls actually made.
type CallCounter interface {
	CallsMade() int64
}

// RunReport is the outcome of a run.
type RunReport struct {
	RunID        string              `json:"run_id"`
	State        State               `json:"state"`
	Diff         DiffStats           `json:"diff"`
	Counts       model.RunCounts     `json:"counts"`
	Errors       []model.ErrorRecord `json:"errors"`
	ErrorLogPath string              `json:"error_log_path,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// Outcome converts the report for the alerter.
func (r *RunReport) Outcome() monitoring.RunOutcome {
	return monitoring.RunOutcome{
		RunID:  r.RunID,
		State:  string(r.State),
		Fatal:  r.State == StateFatal,
		Quota:  r.State == StateQuotaExhausted,
		Counts: r.Counts,
	}
}

// Orchestrator runs one batch enrichment at a time.
type Orchestrator struct {
	cfg      Config
	source   store.PropertySource
	sink     store.ResultSink
	enricher Enricher
	calls    CallCounter
	metrics  *monitoring.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics publishes run progress to Prometheus.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCallCounter reports real API call usage instead of the
// calls-per-property estimate.
func WithCallCounter(c CallCounter) Option {
	return func(o *Orchestrator) { o.calls = c }
}

// WithSleep replaces the wait used for inter-batch and retry delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithClock sets the clock used for timestamps and rates.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(cfg Config, source store.PropertySource, sink store.ResultSink, enricher Enricher, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	o := &Orchestrator{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		enricher: enricher,
		sleep:    sleepCtx,
		now:      time.Now,
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes a batch run. Quota exhaustion and interruption are states,
// not errors; a non-nil error is returned only with StateFatal.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: uuid.New().String(), StartedAt: o.now().UTC()}
	stats := &runStats{}
	log := zap.L().With(zap.String("run_id", report.RunID))

	o.setState(StateLoading)
	log.Info("batch: starting run",
		zap.Int("daily_quota", o.cfg.DailyQuota),
		zap.Int64("max_properties", o.cfg.MaxProperties()),
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.String("region", o.cfg.RegionCode),
	)

	if err := o.healthCheck(ctx); err != nil {
		return o.finish(report, stats, StateFatal, err, log)
	}

	pending, diff, err := Diff(ctx, o.source, o.sink, o.cfg.RegionCode)
	if err != nil {
		return o.finish(report, stats, StateFatal, err, log)
	}
	if o.cfg.Limit > 0 && len(pending) > o.cfg.Limit {
		pending = pending[:o.cfg.Limit]
	}
	report.Diff = diff
	stats.total.Store(int64(len(pending)))
	stats.skipped.Store(int64(diff.AlreadyEnriched))

	log.Info("batch: work list loaded",
		zap.Int("properties", diff.Total),
		zap.Int("already_enriched", diff.AlreadyEnriched),
		zap.Int("pending", len(pending)),
	)

	o.setState(StateRunning)
	state := o.process(ctx, pending, stats, report.StartedAt, log)
	return o.finish(report, stats, state, nil, log)
}

func (o *Orchestrator) healthCheck(ctx context.Context) error {
	if err := o.enricher.Ping(ctx); err != nil {
		return eris.Wrap(err, "batch: health check enricher")
	}
	if err := o.source.Ping(ctx); err != nil {
		return eris.Wrap(err, "batch: health check property source")
	}
	return nil
}

// process walks the pending list batch by batch and returns the terminal state.
func (o *Orchestrator) process(ctx context.Context, pending []model.Property, stats *runStats, started time.Time, log *zap.Logger) State {
	var callsAtStart int64
	if o.calls != nil {
		callsAtStart = o.calls.CallsMade()
	}
	updateCalls := func() {
		if o.calls != nil {
			stats.apiCalls.Store(o.calls.CallsMade() - callsAtStart)
			return
		}
		stats.apiCalls.Store(stats.processed.Load() * int64(o.cfg.CallsPerProperty))
	}

	// In-flight items finish even after ctx is cancelled; the run stops at
	// the next batch boundary.
	itemCtx := context.WithoutCancel(ctx)
	maxProps := o.cfg.MaxProperties()
	var admitMu sync.Mutex
	admit := func() bool {
		admitMu.Lock()
		defer admitMu.Unlock()
		if stats.processed.Load() >= maxProps {
			return false
		}
		stats.processed.Add(1)
		return true
	}

	batches := 0
	for start := 0; start < len(pending); start += o.cfg.BatchSize {
		if ctx.Err() != nil {
			return StateInterrupted
		}

		end := min(start+o.cfg.BatchSize, len(pending))
		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)

		quotaHit := false
		for _, p := range pending[start:end] {
			if !admit() {
				quotaHit = true
				break
			}
			g.Go(func() error {
				o.enrichOne(itemCtx, p, stats, log)
				return nil
			})
		}
		_ = g.Wait()
		batches++

		updateCalls()
		o.reportProgress(stats, batches, started, log)

		if quotaHit {
			log.Warn("batch: daily quota reached",
				zap.Int64("processed", stats.processed.Load()),
				zap.Int("daily_quota", o.cfg.DailyQuota),
			)
			return StateQuotaExhausted
		}

		if end < len(pending) && o.cfg.InterBatchDelay > 0 {
			if err := o.sleep(ctx, o.cfg.InterBatchDelay); err != nil {
				return StateInterrupted
			}
		}
	}
	return StateCompleted
}

func (o *Orchestrator) enrichOne(ctx context.Context, p model.Property, stats *runStats, log *zap.Logger) {
	begin := o.now()
	retry := resilience.FixedRetry(o.cfg.MaxRetries, o.cfg.RetryDelay, censuserr.IsRetryable)
	retry.Sleep = o.sleep
	retry.OnRetry = resilience.RetryLogger("batch: enrich property",
		zap.String("property_id", p.PropertyID),
		zap.String("region_code", p.RegionCode),
	)

	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.EnrichmentResult, error) {
		return o.enricher.EnrichNew(ctx, p, o.cfg.RadiusMiles)
	})
	if o.metrics != nil {
		o.metrics.ObserveEnrich(o.now().Sub(begin))
	}

	switch {
	case err == nil:
		stats.enriched.Add(1)
	case errors.Is(err, store.ErrAlreadyExists):
		stats.skipped.Add(1)
	default:
		stats.failed.Add(1)
		stats.recordError(model.ErrorRecord{
			PropertyID: p.PropertyID,
			RegionCode: p.RegionCode,
			Error:      err.Error(),
			Kind:       censuserr.Kind(err),
			Attempts:   res.Attempts,
			At:         o.now().UTC(),
		})
		log.Warn("batch: property failed",
			zap.String("property_id", p.PropertyID),
			zap.String("region_code", p.RegionCode),
			zap.Int("attempts", res.Attempts),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) reportProgress(stats *runStats, batches int, started time.Time, log *zap.Logger) {
	c := stats.snapshot()
	if o.metrics != nil {
		o.metrics.SetRun(string(o.State()), c, AllStates)
	}
	log.Info("batch: batch complete",
		zap.Int("batch", batches),
		zap.Int64("processed", c.Processed),
		zap.Int64("enriched", c.Enriched),
		zap.Int64("skipped", c.Skipped),
		zap.Int64("failed", c.Failed),
		zap.Int64("api_calls_used", c.APICallsUsed),
	)
	if batches%o.cfg.ProgressEvery == 0 {
		log.Info("batch: progress", zap.String("summary", FormatProgress(c, o.now().Sub(started))))
	}
}

// finish settles the final state, writes the error log and logs the summary.
func (o *Orchestrator) finish(report *RunReport, stats *runStats, state State, runErr error, log *zap.Logger) (*RunReport, error) {
	o.setState(state)
	report.State = state
	report.Counts = stats.snapshot()
	report.Errors = stats.errorRecords()
	report.FinishedAt = o.now().UTC()

	if len(report.Errors) > 0 || runErr != nil {
		records := report.Errors
		if runErr != nil {
			records = append(records, model.ErrorRecord{
				Error: runErr.Error(),
				Kind:  censuserr.Kind(runErr),
				At:    report.FinishedAt,
			})
		}
		path, err := WriteErrorLog(o.cfg.ErrorLogDir, report.RunID, state, report.FinishedAt, records)
		if err != nil {
			log.Error("batch: failed to write error log", zap.Error(err))
		} else {
			report.ErrorLogPath = path
		}
	}

	if o.metrics != nil {
		o.metrics.SetRun(string(state), report.Counts, AllStates)
	}

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.Int64("processed", report.Counts.Processed),
		zap.Int64("enriched", report.Counts.Enriched),
		zap.Int64("skipped", report.Counts.Skipped),
		zap.Int64("failed", report.Counts.Failed),
		zap.Int64("api_calls_used", report.Counts.APICallsUsed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	}
	if runErr != nil {
		log.Error("batch: run failed", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	log.Info("batch: run finished", fields...)
	return report, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
