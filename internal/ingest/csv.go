// Package ingest loads property listings with coordinates from CSV files
// into the property source.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
)

// Required header columns, matched case-insensitively in any order.
var requiredColumns = []string{"property_id", "region_code", "latitude", "longitude"}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
}

// Row is one parsed data row. Err is set when the row is unusable; the
// stream continues past it.
type Row struct {
	Line     int
	Property model.Property
	Err      error
}

// StreamProperties reads a listing CSV and sends parsed rows to a channel.
// The first record must be the header. Caller must consume the row channel;
// fatal errors (bad header, malformed CSV, cancellation) are sent on the
// error channel. Both channels are closed when processing completes.
func StreamProperties(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if err != nil {
			errCh <- eris.Wrap(err, "ingest: read header")
			return
		}
		cols, err := columnIndex(header)
		if err != nil {
			errCh <- err
			return
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read row")
				return
			}

			line, _ := reader.FieldPos(0)
			row := Row{Line: line}
			row.Property, row.Err = cols.parse(record)

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

type columns map[string]int

func columnIndex(header []string) (columns, error) {
	cols := columns{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, eris.Errorf("ingest: missing column %q", name)
		}
	}
	return cols, nil
}

func (c columns) field(record []string, name string) string {
	i := c[name]
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columns) parse(record []string) (model.Property, error) {
	p := model.Property{
		PropertyID: c.field(record, "property_id"),
		RegionCode: c.field(record, "region_code"),
	}
	if p.PropertyID == "" || p.RegionCode == "" {
		return p, eris.New("ingest: property_id and region_code are required")
	}

	lat, err := strconv.ParseFloat(c.field(record, "latitude"), 64)
	if err != nil {
		return p, eris.Wrap(err, "ingest: parse latitude")
	}
	lon, err := strconv.ParseFloat(c.field(record, "longitude"), 64)
	if err != nil {
		return p, eris.Wrap(err, "ingest: parse longitude")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return p, eris.Errorf("ingest: coordinate out of range (%f, %f)", lat, lon)
	}
	p.Latitude, p.Longitude = lat, lon
	return p, nil
}
