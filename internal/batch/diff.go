package batch

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

// diffPageSize is the page size used to walk the property source.
const diffPageSize = 1000

// DiffStats describes the work list produced by Diff.
type DiffStats struct {
	Total           int `json:"total"`
	AlreadyEnriched int `json:"already_enriched"`
	Pending         int `json:"pending"`
}

// Diff returns the properties in source that have no enrichment in sink,
// sorted by region code then property id. Duplicate source rows are
// collapsed.
func Diff(ctx context.Context, source store.PropertySource, sink store.ResultSink, regionCode string) ([]model.Property, DiffStats, error) {
	var st DiffStats

	keys, err := sink.ListEnrichedKeys(ctx)
	if err != nil {
		return nil, st, eris.Wrap(err, "batch: list enriched keys")
	}
	enriched := make(map[model.PropertyKey]struct{}, len(keys))
	for _, k := range keys {
		enriched[k] = struct{}{}
	}

	seen := make(map[model.PropertyKey]struct{})
	var pending []model.Property
	for offset := 0; ; offset += diffPageSize {
		if err := ctx.Err(); err != nil {
			return nil, st, eris.Wrap(err, "batch: diff cancelled")
		}
		page, err := source.ListProperties(ctx, store.PropertyFilter{RegionCode: regionCode, Limit: diffPageSize, Offset: offset})
		if err != nil {
			return nil, st, eris.Wrap(err, "batch: list properties")
		}
		for _, p := range page {
			key := p.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			st.Total++
			if _, ok := enriched[key]; ok {
				st.AlreadyEnriched++
				continue
			}
			pending = append(pending, p)
		}
		if len(page) < diffPageSize {
			break
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].RegionCode != pending[j].RegionCode {
			return pending[i].RegionCode < pending[j].RegionCode
		}
		return pending[i].PropertyID < pending[j].PropertyID
	})
	st.Pending = len(pending)
	return pending, st, nil
}
