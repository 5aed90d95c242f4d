package model

import "time"

// NameRecord is a cached name with its request counter.
type NameRecord struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Count        int64     `json:"count_of_requests"`
	LastAccessed time.Time `json:"last_accessed"`
}

// ProbabilityLink ties a name to a country with the predicted probability.
type ProbabilityLink struct {
	NameID      int64   `json:"name_id"`
	CountryID   int64   `json:"country_id"`
	Probability float64 `json:"probability"`
}

// CountryProbability is one country entry of a lookup response.
type CountryProbability struct {
	CountryCode string  `json:"country_code" yaml:"country_code"`
	CountryName string  `json:"country_name" yaml:"country_name"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Lookup is the result of resolving a name.
type Lookup struct {
	Name      string               `json:"name" yaml:"name"`
	Count     int64                `json:"count" yaml:"count"`
	Countries []CountryProbability `json:"countries" yaml:"countries"`
}

// NewLookup returns a Lookup whose Countries encodes as [] when empty.
func NewLookup(name string, count int64, countries []CountryProbability) *Lookup {
	if countries == nil {
		countries = []CountryProbability{}
	}
	return &Lookup{Name: name, Count: count, Countries: countries}
}

// PopularName is one row of the popular-names ranking for a country.
type PopularName struct {
	Name        string  `json:"name" yaml:"name"`
	Count       int64   `json:"count" yaml:"count"`
	Probability float64 `json:"probability" yaml:"probability"`
	LinkCount   int64   `json:"-" yaml:"-"`
}
