package demographics

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/model"
)

func TestScore_ExcellentScenario(t *testing.T) {
	f := Factors{RenterFraction: 0.42, MedianIncome: 72000, MedianAge: 33, Density: 4500, PovertyFraction: 0.08}
	score := Score(f)
	assert.GreaterOrEqual(t, score, 0.80)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, "Excellent", Label(score))
}

func TestScore_Tiers(t *testing.T) {
	tests := []struct {
		name string
		f    Factors
		want float64
	}{
		{"all lowest", Factors{RenterFraction: 0.1, MedianIncome: 20000, MedianAge: 18, Density: 100, PovertyFraction: 0.3}, 0.10 + 0.05 + 0.05 + 0.02 + 0.01},
		{"renter lower partial", Factors{RenterFraction: 0.30, MedianIncome: 50000, MedianAge: 28, Density: 2000, PovertyFraction: 0.05}, 0.30 + 0.30 + 0.20 + 0.10 + 0.05},
		{"renter upper partial", Factors{RenterFraction: 0.55, MedianIncome: 45000, MedianAge: 42, Density: 9000, PovertyFraction: 0.12}, 0.30 + 0.25 + 0.15 + 0.08 + 0.03},
		{"renter above sixty", Factors{RenterFraction: 0.70, MedianIncome: 120000, MedianAge: 26, Density: 1500, PovertyFraction: 0.10}, 0.20 + 0.25 + 0.15 + 0.08 + 0.03},
		{"broad tiers", Factors{RenterFraction: 0.26, MedianIncome: 160000, MedianAge: 50, Density: 600, PovertyFraction: 0.15}, 0.20 + 0.15 + 0.10 + 0.05 + 0.01},
		{"upper bounds inclusive", Factors{RenterFraction: 0.50, MedianIncome: 100000, MedianAge: 40, Density: 8000, PovertyFraction: 0.0999}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.f), 1e-9)
		})
	}
}

func TestScore_Bounded(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		f := Factors{
			RenterFraction:  r.Float64()*4 - 2,
			MedianIncome:    r.Float64()*1e6 - 1e5,
			MedianAge:       r.Float64()*200 - 50,
			Density:         r.Float64()*1e6 - 1e3,
			PovertyFraction: r.Float64()*4 - 2,
		}
		s := Score(f)
		require.GreaterOrEqual(t, s, 0.0, "%+v", f)
		require.LessOrEqual(t, s, 1.0, "%+v", f)
	}
}

func TestScore_NonFiniteFallsToLowestTier(t *testing.T) {
	f := Factors{RenterFraction: math.NaN(), MedianIncome: math.Inf(1), MedianAge: math.Inf(-1), Density: math.NaN(), PovertyFraction: math.NaN()}
	assert.InDelta(t, 0.10+0.05+0.05+0.02+0.01, Score(f), 1e-9)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1.0, "Excellent"},
		{0.80, "Excellent"},
		{0.79, "Strong"},
		{0.65, "Strong"},
		{0.50, "Good"},
		{0.35, "Fair"},
		{0.3499, "Weak"},
		{0, "Weak"},
		{math.NaN(), "Weak"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.score), "score %v", tt.score)
	}
}

func TestParseScoreConfig_Invalid(t *testing.T) {
	_, err := ParseScoreConfig([]byte(`demand_score:
  renter_percentage: {weight: 0.5, tiers: [{points: 0.6}], default: 0.1}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renter_percentage: tier 0 points must be within [0, weight]")
	assert.Contains(t, err.Error(), "weights must sum to 1")

	_, err = ParseScoreConfig([]byte("demand_score: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demographics: parse bands")
}

func TestLoadScoreConfig_CustomBands(t *testing.T) {
	custom := strings.Replace(string(defaultBandsYAML), "- {min: 0.80, label: Excellent}", "- {min: 0.95, label: Excellent}", 1)
	path := filepath.Join(t.TempDir(), "bands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))

	cfg, err := LoadScoreConfig(path)
	require.NoError(t, err)
	s := NewScorer(cfg)
	assert.Equal(t, "Strong", s.Label(0.9))
	assert.Equal(t, "Excellent", s.Label(0.96))

	_, err = LoadScoreConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultScoreConfig_Valid(t *testing.T) {
	cfg := DefaultScoreConfig()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Labels, 4)
	assert.Equal(t, "Excellent", cfg.Labels[0].Label)
}

func TestKeyFactors(t *testing.T) {
	e := KeyFactors(Factors{RenterFraction: 0.42, MedianIncome: 72000, MedianAge: 33, Density: 4500, PovertyFraction: 0.08})
	assert.Equal(t, []string{
		"Ideal renter percentage (42.0%) drives storage demand",
		"Target income range ($72K) for storage customers",
		"Young professional demographic (median age 33.0) is transient",
		"Low poverty rate (8.0%) indicates economic health",
	}, e.Positive)
	assert.Empty(t, e.Negative)
	assert.Empty(t, e.Neutral)

	e = KeyFactors(Factors{RenterFraction: 0.2, MedianIncome: 35000, MedianAge: 50, PovertyFraction: 0.2})
	assert.Len(t, e.Negative, 4)

	e = KeyFactors(Factors{RenterFraction: 0.7, MedianIncome: 120000, MedianAge: 24, PovertyFraction: 0.12})
	assert.Equal(t, []string{
		"High renter percentage (70.0%)",
		"High income ($120K) - may have larger homes with storage",
		"Young population (median age 24.0) - students/early career",
	}, e.Neutral)
	assert.Empty(t, e.Positive)

	e = KeyFactors(Factors{RenterFraction: math.NaN()})
	assert.Empty(t, e.Positive)
	assert.NotNil(t, e.Positive)
}

func TestFactorsFromResult(t *testing.T) {
	res := Calculate(Input{
		RadiusMiles: 1,
		Tract: &model.TractData{
			MedianHouseholdIncome: 72000, MedianAge: 33.4,
			OccupiedHousingUnits: 1200, RenterOccupiedUnits: 505,
			BelowPoverty: 310, PovertyUniverse: 3900,
		},
	})
	f := FactorsFromResult(res)
	assert.InDelta(t, 0.421, f.RenterFraction, 1e-9)
	assert.InDelta(t, 72000, f.MedianIncome, 1e-9)
	assert.InDelta(t, 0.079, f.PovertyFraction, 1e-9)
	assert.InDelta(t, 33.4, f.MedianAge, 1e-9)
	assert.Equal(t, Factors{}, FactorsFromResult(nil))
}
