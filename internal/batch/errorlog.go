package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
)

// errorLog is the on-disk shape of a run's error log.
type errorLog struct {
	RunID       string              `json:"run_id"`
	State       State               `json:"state"`
	GeneratedAt time.Time           `json:"generated_at"`
	Count       int                 `json:"count"`
	Errors      []model.ErrorRecord `json:"errors"`
}

// ErrorLogName returns the file name for an error log written at t.
func ErrorLogName(t time.Time) string {
	return fmt.Sprintf("census-errors-%d.json", t.UnixMilli())
}

// WriteErrorLog writes records as census-errors-<unix ms>.json under dir and
// returns the path.
func WriteErrorLog(dir, runID string, state State, at time.Time, records []model.ErrorRecord) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "batch: create error log dir %s", dir)
	}

	data, err := json.MarshalIndent(errorLog{
		RunID:       runID,
		State:       state,
		GeneratedAt: at.UTC(),
		Count:       len(records),
		Errors:      records,
	}, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "batch: marshal error log")
	}

	path := filepath.Join(dir, ErrorLogName(at))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "batch: write error log %s", path)
	}
	return path, nil
}
