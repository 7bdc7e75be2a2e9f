package acs

import "github.com/sells-group/demographics-cli/internal/model"

// ACS 5-year variable codes.
const (
	varTotalPopulation       = "B01003_001E"
	varMedianHouseholdIncome = "B19013_001E"
	varOccupiedUnits         = "B25003_001E"
	varOwnerOccupied         = "B25003_002E"
	varRenterOccupied        = "B25003_003E"
	varTotalHousingUnits     = "B25002_001E"
	varVacantUnits           = "B25002_003E"
	varMedianAge             = "B01002_001E"
	varPovertyUniverse       = "B17001_001E"
	varBelowPoverty          = "B17001_002E"
	varLaborForce            = "B23025_003E"
	varUnemployed            = "B23025_005E"
	varTotalHouseholds       = "B11001_001E"
	varAvgHouseholdSize      = "B25010_001E"
)

var tractVariables = []string{
	varTotalPopulation,
	varMedianHouseholdIncome,
	varOccupiedUnits,
	varOwnerOccupied,
	varRenterOccupied,
	varTotalHousingUnits,
	varVacantUnits,
	varMedianAge,
	varBelowPoverty,
	varPovertyUniverse,
	varUnemployed,
	varLaborForce,
	varTotalHouseholds,
	varAvgHouseholdSize,
}

// Small-sample geographies only expose reliable counts for these.
var blockGroupVariables = []string{
	varTotalPopulation,
	varOwnerOccupied,
	varRenterOccupied,
}

var countyVariables = []string{
	varTotalPopulation,
	varMedianHouseholdIncome,
	varOccupiedUnits,
	varOwnerOccupied,
	varRenterOccupied,
	varMedianAge,
}

// Variables returns the variable codes requested for level.
func Variables(level model.Level) []string {
	switch level {
	case model.LevelTract:
		return tractVariables
	case model.LevelBlockGroup:
		return blockGroupVariables
	case model.LevelCounty:
		return countyVariables
	default:
		return nil
	}
}
