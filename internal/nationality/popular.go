package nationality

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/qabilityp/namechecker/internal/metrics"
	"github.com/qabilityp/namechecker/internal/model"
	"github.com/qabilityp/namechecker/internal/store"
)

// DefaultPopularLimit is the number of names returned when no limit is given.
const DefaultPopularLimit = 5

// Ranker lists the most frequently linked names for a country. It reads
// the store only.
type Ranker struct {
	store     store.Store
	countries *CountryCache
	limit     int
	metrics   *metrics.Metrics
}

// NewRanker creates a Ranker. A non-positive defaultLimit means DefaultPopularLimit.
func NewRanker(st store.Store, countries *CountryCache, defaultLimit int, m *metrics.Metrics) *Ranker {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPopularLimit
	}
	return &Ranker{store: st, countries: countries, limit: defaultLimit, metrics: m}
}

// TopNames ranks names linked to the country with the given code by their
// number of links, breaking ties by name then id.
func (r *Ranker) TopNames(ctx context.Context, code string, limit int) ([]model.PopularName, error) {
	top, err := r.topNames(ctx, code, limit)
	r.metrics.IncPopular(popularOutcome(err))
	return top, err
}

func (r *Ranker) topNames(ctx context.Context, code string, limit int) ([]model.PopularName, error) {
	if code == "" {
		return nil, &ValidationError{Field: "country", Message: "The 'country' query parameter is required."}
	}
	if limit <= 0 {
		limit = r.limit
	}

	country, err := r.countries.Lookup(ctx, code)
	if err != nil {
		return nil, eris.Wrap(err, "popular: lookup country")
	}
	if country == nil {
		return nil, &CountryNotFoundError{Code: code}
	}

	top, err := r.store.TopNames(ctx, country.ID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "popular: top names")
	}
	if len(top) == 0 {
		return nil, &NoDataError{Code: code}
	}
	return top, nil
}

func popularOutcome(err error) string {
	var (
		vErr  *ValidationError
		cnErr *CountryNotFoundError
		ndErr *NoDataError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &cnErr):
		return "country_not_found"
	case errors.As(err, &ndErr):
		return "no_data"
	default:
		return "error"
	}
}
