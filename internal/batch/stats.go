package batch

import (
	"sync"
	"sync/atomic"

	"github.com/sells-group/demographics-cli/internal/model"
)

// runStats holds the live counters of a run.
type runStats struct {
	total     atomic.Int64
	processed atomic.Int64
	enriched  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	apiCalls  atomic.Int64

	mu     sync.Mutex
	errors []model.ErrorRecord
}

func (s *runStats) recordError(rec model.ErrorRecord) {
	s.mu.Lock()
	s.errors = append(s.errors, rec)
	s.mu.Unlock()
}

func (s *runStats) errorRecords() []model.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ErrorRecord, len(s.errors))
	copy(out, s.errors)
	return out
}

func (s *runStats) snapshot() model.RunCounts {
	return model.RunCounts{
		Total:        s.total.Load(),
		Processed:    s.processed.Load(),
		Enriched:     s.enriched.Load(),
		Skipped:      s.skipped.Load(),
		Failed:       s.failed.Load(),
		APICallsUsed: s.apiCalls.Load(),
	}
}
