package demographics

import (
	"fmt"
	"math"

	"github.com/sells-group/demographics-cli/internal/model"
)

// Explanation groups human-readable reasons behind a demand score.
type Explanation struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
	Neutral  []string `json:"neutral"`
}

// FactorsFromResult converts a stored result's percentages back into
// fractions for scoring.
func FactorsFromResult(r *model.EnrichmentResult) Factors {
	if r == nil {
		return Factors{}
	}
	return Factors{
		RenterFraction:  r.Housing.RenterPercentage / 100,
		MedianIncome:    float64(r.Economic.MedianHouseholdIncome),
		MedianAge:       r.Population.MedianAge,
		Density:         float64(r.Population.PopulationDensityPerSqMile),
		PovertyFraction: r.Economic.PovertyRate / 100,
	}
}

// KeyFactors explains which inputs help or hurt demand.
func KeyFactors(f Factors) Explanation {
	e := Explanation{Positive: []string{}, Negative: []string{}, Neutral: []string{}}
	if !finite(f.RenterFraction, f.MedianIncome, f.MedianAge, f.PovertyFraction) {
		return e
	}

	renterPct := f.RenterFraction * 100
	switch {
	case renterPct >= 35 && renterPct <= 50:
		e.Positive = append(e.Positive, fmt.Sprintf("Ideal renter percentage (%.1f%%) drives storage demand", renterPct))
	case renterPct >= 25 && renterPct < 35:
		e.Neutral = append(e.Neutral, fmt.Sprintf("Moderate renter percentage (%.1f%%)", renterPct))
	case renterPct < 25:
		e.Negative = append(e.Negative, fmt.Sprintf("Low renter percentage (%.1f%%) may limit demand", renterPct))
	default:
		e.Neutral = append(e.Neutral, fmt.Sprintf("High renter percentage (%.1f%%)", renterPct))
	}

	incomeK := f.MedianIncome / 1000
	switch {
	case f.MedianIncome >= 50000 && f.MedianIncome <= 100000:
		e.Positive = append(e.Positive, fmt.Sprintf("Target income range ($%.0fK) for storage customers", incomeK))
	case f.MedianIncome < 40000:
		e.Negative = append(e.Negative, fmt.Sprintf("Below-target income ($%.0fK) may limit affordability", incomeK))
	case f.MedianIncome > 100000:
		e.Neutral = append(e.Neutral, fmt.Sprintf("High income ($%.0fK) - may have larger homes with storage", incomeK))
	}

	switch {
	case f.MedianAge >= 28 && f.MedianAge <= 40:
		e.Positive = append(e.Positive, fmt.Sprintf("Young professional demographic (median age %.1f) is transient", f.MedianAge))
	case f.MedianAge < 28:
		e.Neutral = append(e.Neutral, fmt.Sprintf("Young population (median age %.1f) - students/early career", f.MedianAge))
	case f.MedianAge > 45:
		e.Negative = append(e.Negative, fmt.Sprintf("Older population (median age %.1f) tends to be more settled", f.MedianAge))
	}

	povertyPct := f.PovertyFraction * 100
	switch {
	case povertyPct > 15:
		e.Negative = append(e.Negative, fmt.Sprintf("Elevated poverty rate (%.1f%%) may reduce demand", povertyPct))
	case povertyPct < 10:
		e.Positive = append(e.Positive, fmt.Sprintf("Low poverty rate (%.1f%%) indicates economic health", povertyPct))
	}

	return e
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
