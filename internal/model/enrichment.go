package model

import (
	"math"
	"time"
)

// DatasetName is the ACS product the enrichment is drawn from.
const DatasetName = "ACS 5-Year Estimates"

// EnrichmentResult is the composite demographic profile stored per property.
// Percentages are rounded to one decimal of a percent and always derive from
// the counts in the same result.
type EnrichmentResult struct {
	Location   Location          `json:"location"`
	Population PopulationSection `json:"population"`
	Housing    HousingSection    `json:"housing"`
	Economic   EconomicSection   `json:"economic"`
	BlockGroup BlockGroupSection `json:"block_group"`
	County     CountySection     `json:"county"`
	Metadata   Metadata          `json:"metadata"`
}

// Location pins the result to a coordinate, catchment radius and geography.
type Location struct {
	GeoIdentifier
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	RadiusMiles float64 `json:"radius_miles"`
}

// PopulationSection is tract-level population data.
type PopulationSection struct {
	Total                      int     `json:"total"`
	MedianAge                  float64 `json:"median_age"`
	TotalHouseholds            int     `json:"total_households"`
	AvgHouseholdSize           float64 `json:"avg_household_size"`
	PopulationDensityPerSqMile int     `json:"population_density_per_sq_mile"`
}

// HousingSection is tract-level housing occupancy.
type HousingSection struct {
	TotalUnits       int     `json:"total_units"`
	OccupiedUnits    int     `json:"occupied_units"`
	VacantUnits      int     `json:"vacant_units"`
	VacancyRate      float64 `json:"vacancy_rate"`
	OwnerOccupied    int     `json:"owner_occupied"`
	OwnerPercentage  float64 `json:"owner_percentage"`
	RenterOccupied   int     `json:"renter_occupied"`
	RenterPercentage float64 `json:"renter_percentage"`
}

// EconomicSection is tract-level income, poverty and employment.
type EconomicSection struct {
	MedianHouseholdIncome int     `json:"median_household_income"`
	BelowPoverty          int     `json:"below_poverty"`
	PovertyUniverse       int     `json:"poverty_universe"`
	PovertyRate           float64 `json:"poverty_rate"`
	Unemployed            int     `json:"unemployed"`
	LaborForce            int     `json:"labor_force"`
	UnemploymentRate      float64 `json:"unemployment_rate"`
}

// BlockGroupSection is hyper-local data; any field may be nil.
type BlockGroupSection struct {
	Population       *int     `json:"population"`
	OwnerOccupied    *int     `json:"owner_occupied"`
	RenterOccupied   *int     `json:"renter_occupied"`
	RenterPercentage *float64 `json:"renter_percentage"`
}

// Clone returns a copy that shares no pointers with b.
func (b BlockGroupSection) Clone() BlockGroupSection {
	return BlockGroupSection{
		Population:       clonePtr(b.Population),
		OwnerOccupied:    clonePtr(b.OwnerOccupied),
		RenterOccupied:   clonePtr(b.RenterOccupied),
		RenterPercentage: clonePtr(b.RenterPercentage),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CountySection is regional context for the property.
type CountySection struct {
	Population            int     `json:"population"`
	MedianHouseholdIncome int     `json:"median_household_income"`
	MedianAge             float64 `json:"median_age"`
	OccupiedUnits         int     `json:"occupied_units"`
	RenterOccupied        int     `json:"renter_occupied"`
	RenterPercentage      float64 `json:"renter_percentage"`
}

// Metadata records where and when the statistics came from.
type Metadata struct {
	DataYear  string    `json:"data_year"`
	Dataset   string    `json:"dataset"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RoundedPercent converts num/den into a percentage rounded to one decimal.
// A non-positive denominator yields 0.
func RoundedPercent(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}

// RecomputeRenterPercentage derives the tract renter percentage from the
// stored counts.
func (r *EnrichmentResult) RecomputeRenterPercentage() float64 {
	return RoundedPercent(r.Housing.RenterOccupied, r.Housing.OccupiedUnits)
}

// Clone returns a deep copy of r.
func (r *EnrichmentResult) Clone() *EnrichmentResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.BlockGroup = r.BlockGroup.Clone()
	return &cp
}

// StoredEnrichment is an enrichment row read back from the result sink.
type StoredEnrichment struct {
	Key       PropertyKey       `json:"key"`
	Result    *EnrichmentResult `json:"result"`
	UpdatedAt time.Time         `json:"updated_at"`
}
