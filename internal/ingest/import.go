package ingest

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/model"
)

const defaultChunkSize = 5000

// PropertyImporter upserts property listings.
type PropertyImporter interface {
	ImportProperties(ctx context.Context, props []model.Property) (int64, error)
}

// Result summarizes an import.
type Result struct {
	Rows     int
	Imported int64
	Skipped  int
}

// Import streams a listing CSV into dst in chunks of chunkSize rows (0 uses
// the default). Unusable rows are logged and skipped.
func Import(ctx context.Context, r io.Reader, dst PropertyImporter, opts CSVOptions, chunkSize int) (Result, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	var res Result

	flush := func(chunk []model.Property) error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := dst.ImportProperties(ctx, chunk)
		if err != nil {
			return eris.Wrap(err, "ingest: import chunk")
		}
		res.Imported += n
		return nil
	}

	rowCh, errCh := StreamProperties(ctx, r, opts)
	chunk := make([]model.Property, 0, chunkSize)
	var importErr error
	for row := range rowCh {
		if importErr != nil {
			continue // drain so the reader goroutine exits
		}
		res.Rows++
		if row.Err != nil {
			res.Skipped++
			zap.L().Debug("ingest: skipping row", zap.Int("line", row.Line), zap.Error(row.Err))
			continue
		}
		chunk = append(chunk, row.Property)
		if len(chunk) == chunkSize {
			importErr = flush(chunk)
			chunk = chunk[:0]
		}
	}
	if importErr != nil {
		return res, importErr
	}
	for err := range errCh {
		if err != nil {
			return res, err
		}
	}
	return res, flush(chunk)
}
