// Package store persists countries, cached names, probability links, and
// users in Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/qabilityp/namechecker/internal/model"
)

// ErrDuplicate is returned when an insert violates a uniqueness rule that
// the caller must surface, such as a taken username.
var ErrDuplicate = eris.New("store: duplicate")

// Store defines the persistence interface for the lookup service.
type Store interface {
	// Countries. GetCountry returns nil, nil when the code is unknown.
	// CreateCountry inserts if absent and returns the stored row either way.
	GetCountry(ctx context.Context, code string) (*model.Country, error)
	CreateCountry(ctx context.Context, c model.Country) (*model.Country, error)

	// Names. FindName returns the lowest-id match or nil, nil.
	FindName(ctx context.Context, name string) (*model.NameRecord, error)
	IncrementName(ctx context.Context, id int64) (*model.NameRecord, error)
	UpsertName(ctx context.Context, name string, now time.Time) (*model.NameRecord, error)

	// Probability links
	UpsertLink(ctx context.Context, nameID, countryID int64, probability float64) error
	ListLinks(ctx context.Context, nameID int64) ([]model.CountryProbability, error)
	TopNames(ctx context.Context, countryID int64, limit int) ([]model.PopularName, error)

	// Users
	CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error)
	GetUser(ctx context.Context, username string) (*model.User, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const countryColumns = `id, code, name, common_name, region, independent, google_maps, open_street_maps,
	capital, capital_coordinates, flag_png, flag_svg, flag_alt, coat_of_arms_png, coat_of_arms_svg, borders`

const nameColumns = `id, name, count_of_requests, last_accessed`

type scannable interface {
	Scan(dest ...any) error
}

func scanCountry(row scannable) (*model.Country, error) {
	var c model.Country
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.CommonName, &c.Region, &c.Independent,
		&c.GoogleMaps, &c.OpenStreetMaps, &c.Capital, &c.CapitalCoordinates,
		&c.FlagPNG, &c.FlagSVG, &c.FlagAlt, &c.CoatOfArmsPNG, &c.CoatOfArmsSVG, &c.Borders)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func countryArgs(c model.Country) []any {
	return []any{c.Code, c.Name, c.CommonName, c.Region, c.Independent,
		c.GoogleMaps, c.OpenStreetMaps, c.Capital, c.CapitalCoordinates,
		c.FlagPNG, c.FlagSVG, c.FlagAlt, c.CoatOfArmsPNG, c.CoatOfArmsSVG, c.Borders}
}

func scanName(row scannable) (*model.NameRecord, error) {
	var n model.NameRecord
	if err := row.Scan(&n.ID, &n.Name, &n.Count, &n.LastAccessed); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanPopular(row scannable) (model.PopularName, error) {
	var p model.PopularName
	var id int64
	err := row.Scan(&id, &p.Name, &p.Count, &p.LinkCount, &p.Probability)
	return p, err
}
