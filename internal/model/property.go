package model

import (
	"fmt"
	"time"
)

// Property is a listing read from the property source. Identity is
// (PropertyID, RegionCode); the source owns the row.
type Property struct {
	PropertyID string  `json:"property_id"`
	RegionCode string  `json:"region_code"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Key returns the composite identity of the property.
func (p Property) Key() PropertyKey {
	return PropertyKey{PropertyID: p.PropertyID, RegionCode: p.RegionCode}
}

// PropertyKey identifies a property and its enrichment row.
type PropertyKey struct {
	PropertyID string `json:"property_id"`
	RegionCode string `json:"region_code"`
}

func (k PropertyKey) String() string {
	return fmt.Sprintf("%s:%s", k.PropertyID, k.RegionCode)
}

// ErrorKind classifies a failed enrichment in the error log.
type ErrorKind string

const (
	ErrorKindGeographyNotFound   ErrorKind = "geography_not_found"
	ErrorKindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrorKindPersistence         ErrorKind = "persistence_failure"
	ErrorKindRejected            ErrorKind = "request_rejected"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// ErrorRecord is one entry of the batch error log.
type ErrorRecord struct {
	PropertyID string    `json:"property_id"`
	RegionCode string    `json:"region_code"`
	Error      string    `json:"error"`
	Kind       ErrorKind `json:"kind"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
}
