package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/config"
	"github.com/sells-group/demographics-cli/internal/demographics"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/monitoring"
	"github.com/sells-group/demographics-cli/internal/store"
)

func TestBatchConfig(t *testing.T) {
	bc := batchConfig(config.BatchConfig{
		DailyQuota: 900, CallsPerProperty: 3, Size: 25, Concurrency: 4,
		InterBatchDelayMs: 1500, MaxRetries: 2, RetryDelayMs: 250,
		RadiusMiles: 5, ProgressEvery: 3, ErrorLogDir: "/tmp/logs",
	})
	assert.Equal(t, 900, bc.DailyQuota)
	assert.Equal(t, 25, bc.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, bc.InterBatchDelay)
	assert.Equal(t, 250*time.Millisecond, bc.RetryDelay)
	assert.Equal(t, int64(300), bc.MaxProperties())
	assert.Equal(t, "/tmp/logs", bc.ErrorLogDir)
}

func stored(id string, renter, income, age, poverty float64) model.StoredEnrichment {
	return model.StoredEnrichment{
		Key: model.PropertyKey{PropertyID: id, RegionCode: "CA"},
		Result: &model.EnrichmentResult{
			Population: model.PopulationSection{MedianAge: age, PopulationDensityPerSqMile: 2500},
			Housing:    model.HousingSection{RenterPercentage: renter},
			Economic:   model.EconomicSection{MedianHouseholdIncome: int(income), PovertyRate: poverty},
		},
	}
}

func TestScoreRecords_RanksHighestFirst(t *testing.T) {
	recs := []model.StoredEnrichment{
		stored("weak", 10, 30000, 60, 25),
		stored("strong", 45, 75000, 32, 5),
		{Key: model.PropertyKey{PropertyID: "empty", RegionCode: "CA"}},
	}
	rows := scoreRecords(demographics.NewScorer(nil), recs)
	require.Len(t, rows, 2)
	assert.Equal(t, "strong", rows[0].Key.PropertyID)
	assert.Equal(t, "weak", rows[1].Key.PropertyID)
	assert.Greater(t, rows[0].Score, rows[1].Score)
	assert.NotEmpty(t, rows[0].Factors.Positive)
	assert.NotEmpty(t, rows[1].Factors.Negative)

	var out bytes.Buffer
	printScores(&out, rows, true)
	assert.Contains(t, out.String(), "PROPERTY")
	assert.Contains(t, out.String(), "strong")
	assert.Contains(t, out.String(), "+ Ideal renter percentage")
}

func TestPrintScores_Empty(t *testing.T) {
	var out bytes.Buffer
	printScores(&out, nil, false)
	assert.Equal(t, "No enriched properties.\n", out.String())
}

func TestPrintStatus(t *testing.T) {
	snap := &monitoring.StatusSnapshot{
		Stats: &store.Stats{
			TotalProperties: 12500,
			TotalEnriched:   2500,
			CompletionPct:   20,
			Averages:        store.Averages{MedianHouseholdIncome: 71234, RenterPercentage: 38.2},
			Regions: []store.RegionStats{
				{RegionCode: "TX", Properties: 2500, Enriched: 500, CompletionPct: 20},
				{RegionCode: "CA", Properties: 10000, Enriched: 2000, CompletionPct: 20},
			},
		},
		Remaining: 10000,
	}

	var out bytes.Buffer
	printStatus(&out, snap, 1)
	got := out.String()
	assert.Contains(t, got, "Properties with coordinates: 12,500")
	assert.Contains(t, got, "Enriched:                    2,500 (20.0%)")
	assert.Contains(t, got, "Remaining:                   10,000")
	assert.Contains(t, got, "$71,234")
	assert.Contains(t, got, "CA")
	assert.NotContains(t, got, "TX")
}
