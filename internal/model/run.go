package model

// RunCounts is a point-in-time view of a batch run's counters.
type RunCounts struct {
	Total        int64 `json:"total"`
	Processed    int64 `json:"processed"`
	Enriched     int64 `json:"enriched"`
	Skipped      int64 `json:"skipped"`
	Failed       int64 `json:"failed"`
	APICallsUsed int64 `json:"api_calls_used"`
}

// FailureRate is failed / (enriched + failed), 0 when nothing finished.
func (c RunCounts) FailureRate() float64 {
	finished := c.Enriched + c.Failed
	if finished == 0 {
		return 0
	}
	return float64(c.Failed) / float64(finished)
}
