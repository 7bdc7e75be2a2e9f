package demographics

import (
	"math"
	"time"

	"github.com/sells-group/demographics-cli/internal/model"
)

// Input is everything Calculate needs to build a result. BlockGroup is nil
// when the block group has no published data.
type Input struct {
	Geo         model.GeoIdentifier
	Latitude    float64
	Longitude   float64
	RadiusMiles float64
	Tract       *model.TractData
	BlockGroup  *model.BlockGroupData
	County      *model.CountyData
	DataYear    string
	FetchedAt   time.Time
}

// Rate returns num/den as a percentage rounded to one decimal, or 0 when
// den is not positive.
func Rate(num, den int) float64 {
	return model.RoundedPercent(num, den)
}

// Density returns people per square mile over a circle of radiusMiles.
func Density(population int, radiusMiles float64) int {
	if radiusMiles <= 0 || math.IsNaN(radiusMiles) || math.IsInf(radiusMiles, 0) {
		return 0
	}
	return int(math.Round(float64(population) / (math.Pi * radiusMiles * radiusMiles)))
}

// Calculate derives percentages and density from raw counts. It is pure.
func Calculate(in Input) *model.EnrichmentResult {
	var tract model.TractData
	if in.Tract != nil {
		tract = *in.Tract
	}
	var county model.CountyData
	if in.County != nil {
		county = *in.County
	}

	res := &model.EnrichmentResult{
		Location: model.Location{
			GeoIdentifier: in.Geo,
			Latitude:      in.Latitude,
			Longitude:     in.Longitude,
			RadiusMiles:   in.RadiusMiles,
		},
		Population: model.PopulationSection{
			Total:                      tract.TotalPopulation,
			MedianAge:                  tract.MedianAge,
			TotalHouseholds:            tract.TotalHouseholds,
			AvgHouseholdSize:           tract.AvgHouseholdSize,
			PopulationDensityPerSqMile: Density(tract.TotalPopulation, in.RadiusMiles),
		},
		Housing: model.HousingSection{
			TotalUnits:       tract.TotalHousingUnits,
			OccupiedUnits:    tract.OccupiedHousingUnits,
			VacantUnits:      tract.VacantUnits,
			VacancyRate:      Rate(tract.VacantUnits, tract.TotalHousingUnits),
			OwnerOccupied:    tract.OwnerOccupiedUnits,
			OwnerPercentage:  Rate(tract.OwnerOccupiedUnits, tract.OccupiedHousingUnits),
			RenterOccupied:   tract.RenterOccupiedUnits,
			RenterPercentage: Rate(tract.RenterOccupiedUnits, tract.OccupiedHousingUnits),
		},
		Economic: model.EconomicSection{
			MedianHouseholdIncome: tract.MedianHouseholdIncome,
			BelowPoverty:          tract.BelowPoverty,
			PovertyUniverse:       tract.PovertyUniverse,
			PovertyRate:           Rate(tract.BelowPoverty, tract.PovertyUniverse),
			Unemployed:            tract.Unemployed,
			LaborForce:            tract.LaborForce,
			UnemploymentRate:      Rate(tract.Unemployed, tract.LaborForce),
		},
		BlockGroup: blockGroupSection(in.BlockGroup),
		County: model.CountySection{
			Population:            county.TotalPopulation,
			MedianHouseholdIncome: county.MedianHouseholdIncome,
			MedianAge:             county.MedianAge,
			OccupiedUnits:         county.OccupiedHousingUnits,
			RenterOccupied:        county.RenterOccupied,
			RenterPercentage:      Rate(county.RenterOccupied, county.OccupiedHousingUnits),
		},
		Metadata: model.Metadata{
			DataYear:  in.DataYear,
			Dataset:   model.DatasetName,
			FetchedAt: in.FetchedAt,
		},
	}
	if res.Location.CountyName == "" {
		res.Location.CountyName = county.CountyName
	}
	return res
}

func blockGroupSection(bg *model.BlockGroupData) model.BlockGroupSection {
	if bg == nil {
		return model.BlockGroupSection{}
	}
	s := model.BlockGroupSection{
		Population:     bg.TotalPopulation,
		OwnerOccupied:  bg.OwnerOccupied,
		RenterOccupied: bg.RenterOccupied,
	}
	if bg.OwnerOccupied != nil && bg.RenterOccupied != nil {
		if total := *bg.OwnerOccupied + *bg.RenterOccupied; total > 0 {
			pct := Rate(*bg.RenterOccupied, total)
			s.RenterPercentage = &pct
		}
	}
	return s
}
