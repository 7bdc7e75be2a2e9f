package acs

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/censuserr"
)

// row maps column names to the first data row of a Census Data API
// response ([[header], [row1], ...]).
type row map[string]string

// parseTable decodes the array-of-arrays body. Cells may be strings,
// numbers or null. Fewer than two rows means the geography has no data.
func parseTable(data []byte) (row, error) {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "acs: unmarshal JSON")
	}
	if len(raw) < 2 {
		return nil, censuserr.ErrGeographyNotFound
	}

	header, values := raw[0], raw[1]
	r := make(row, len(header))
	for i, col := range header {
		name, ok := col.(string)
		if !ok || i >= len(values) {
			continue
		}
		r[name] = cellString(values[i])
	}
	return r, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// parseNumber returns the value and whether it is a usable estimate.
// Census annotates suppressed or unavailable estimates with large negative
// sentinels such as -666666666.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// count parses a count, treating missing or sentinel values as 0.
func (r row) count(name string) int {
	v, ok := parseNumber(r[name])
	if !ok {
		return 0
	}
	return int(math.Round(v))
}

// rate parses a median or ratio, treating missing or sentinel values as 0.
func (r row) rate(name string) float64 {
	v, _ := parseNumber(r[name])
	return v
}

// nullable parses a count that may be suppressed.
func (r row) nullable(name string) *int {
	v, ok := parseNumber(r[name])
	if !ok {
		return nil
	}
	n := int(math.Round(v))
	return &n
}
