package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/model"
)

func collectRows(t *testing.T, rowCh <-chan Row, errCh <-chan error) ([]Row, error) {
	t.Helper()
	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamProperties_Basic(t *testing.T) {
	input := "Latitude,property_id,REGION_CODE,longitude,notes\n" +
		"34.05,L1,CA,-118.25,ok\n" +
		" 29.76 ,L2,TX,-95.37\n"
	rowCh, errCh := StreamProperties(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.NoError(t, rows[0].Err)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, model.Property{PropertyID: "L1", RegionCode: "CA", Latitude: 34.05, Longitude: -118.25}, rows[0].Property)
	assert.InDelta(t, 29.76, rows[1].Property.Latitude, 1e-9)
}

func TestStreamProperties_InvalidRowsFlagged(t *testing.T) {
	input := "property_id,region_code,latitude,longitude\n" +
		"L1,TX,,-95.0\n" +
		"L2,TX,91,-95.0\n" +
		",CA,34.1,-118.2\n" +
		"L4,CA,abc,-118.2\n" +
		"L5,CA\n"
	rowCh, errCh := StreamProperties(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.Error(t, r.Err, "line %d", r.Line)
	}
	assert.Contains(t, rows[1].Err.Error(), "out of range")
	assert.Contains(t, rows[2].Err.Error(), "required")
}

func TestStreamProperties_PipeDelimitedWithComments(t *testing.T) {
	input := "# exported listings\nproperty_id|region_code|latitude|longitude\nL1|CA|34|-118\n"
	rowCh, errCh := StreamProperties(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
		Comment:   '#',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "L1", rows[0].Property.PropertyID)
}

func TestStreamProperties_MissingColumn(t *testing.T) {
	rowCh, errCh := StreamProperties(context.Background(), strings.NewReader("property_id,latitude,longitude\nL1,1,2\n"), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, err.Error(), `missing column "region_code"`)
}

func TestStreamProperties_EmptyInput(t *testing.T) {
	rowCh, errCh := StreamProperties(context.Background(), strings.NewReader(""), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: read header")
}

func TestStreamProperties_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rowCh, errCh := StreamProperties(ctx, strings.NewReader("property_id,region_code,latitude,longitude\nL1,CA,1,2\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type recordingImporter struct {
	chunks [][]model.Property
	err    error
}

func (r *recordingImporter) ImportProperties(_ context.Context, props []model.Property) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.chunks = append(r.chunks, append([]model.Property(nil), props...))
	return int64(len(props)), nil
}

func TestImport_Chunks(t *testing.T) {
	input := "property_id,region_code,latitude,longitude\n" +
		"L1,CA,1,1\nL2,CA,2,2\nbad,CA,x,2\nL3,CA,3,3\nL4,TX,4,4\nL5,TX,5,5\n"
	dst := &recordingImporter{}

	res, err := Import(context.Background(), strings.NewReader(input), dst, CSVOptions{}, 2)
	require.NoError(t, err)
	assert.Equal(t, Result{Rows: 6, Imported: 5, Skipped: 1}, res)
	require.Len(t, dst.chunks, 3)
	assert.Len(t, dst.chunks[0], 2)
	assert.Equal(t, "L5", dst.chunks[2][0].PropertyID)
}

func TestImport_ImporterError(t *testing.T) {
	input := "property_id,region_code,latitude,longitude\nL1,CA,1,1\nL2,CA,2,2\nL3,CA,3,3\n"
	dst := &recordingImporter{err: errors.New("db down")}

	_, err := Import(context.Background(), strings.NewReader(input), dst, CSVOptions{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: import chunk")
}

func TestImport_HeaderError(t *testing.T) {
	_, err := Import(context.Background(), strings.NewReader("id,lat\n"), &recordingImporter{}, CSVOptions{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}
