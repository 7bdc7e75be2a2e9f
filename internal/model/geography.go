package model

// GeoIdentifier is the statistical geography a coordinate falls in.
type GeoIdentifier struct {
	StateFIPS      string `json:"state_fips"`
	CountyFIPS     string `json:"county_fips"`
	TractCode      string `json:"tract_code"`
	BlockGroupCode string `json:"block_group_code"`
	CountyName     string `json:"county_name"`
	TractName      string `json:"tract_name"`
	GeoID          string `json:"geoid,omitempty"`
	CountyGeoID    string `json:"county_geoid,omitempty"`
}

// Level is an ACS geography level.
type Level string

const (
	LevelTract      Level = "tract"
	LevelBlockGroup Level = "block_group"
	LevelCounty     Level = "county"
)

// TractData holds the full ACS variable set for a census tract.
type TractData struct {
	TotalPopulation       int     `json:"total_population"`
	MedianHouseholdIncome int     `json:"median_household_income"`
	OccupiedHousingUnits  int     `json:"occupied_housing_units"`
	OwnerOccupiedUnits    int     `json:"owner_occupied_units"`
	RenterOccupiedUnits   int     `json:"renter_occupied_units"`
	TotalHousingUnits     int     `json:"total_housing_units"`
	VacantUnits           int     `json:"vacant_units"`
	MedianAge             float64 `json:"median_age"`
	BelowPoverty          int     `json:"below_poverty"`
	PovertyUniverse       int     `json:"poverty_universe"`
	Unemployed            int     `json:"unemployed"`
	LaborForce            int     `json:"labor_force"`
	TotalHouseholds       int     `json:"total_households"`
	AvgHouseholdSize      float64 `json:"avg_household_size"`
}

// BlockGroupData holds the reduced block-group variable set. Fields are nil
// when the Census Bureau suppresses them for small populations.
type BlockGroupData struct {
	TotalPopulation *int   `json:"total_population"`
	OwnerOccupied   *int   `json:"owner_occupied"`
	RenterOccupied  *int   `json:"renter_occupied"`
	BlockGroupCode  string `json:"block_group_code"`
}

// CountyData holds the medium county variable set.
type CountyData struct {
	CountyName            string  `json:"county_name"`
	TotalPopulation       int     `json:"total_population"`
	MedianHouseholdIncome int     `json:"median_household_income"`
	OccupiedHousingUnits  int     `json:"occupied_housing_units"`
	OwnerOccupied         int     `json:"owner_occupied"`
	RenterOccupied        int     `json:"renter_occupied"`
	MedianAge             float64 `json:"median_age"`
}

// RawLevel carries the data for one level; exactly one pointer is set.
type RawLevel struct {
	Level      Level           `json:"level"`
	Tract      *TractData      `json:"tract,omitempty"`
	BlockGroup *BlockGroupData `json:"block_group,omitempty"`
	County     *CountyData     `json:"county,omitempty"`
}
