// Package nationality resolves names to likely countries of origin, caching
// predictions and country metadata in the store.
package nationality

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qabilityp/namechecker/internal/metrics"
	"github.com/qabilityp/namechecker/internal/model"
	"github.com/qabilityp/namechecker/internal/resilience"
	"github.com/qabilityp/namechecker/internal/store"
	"github.com/qabilityp/namechecker/pkg/nationalize"
)

const serviceNationalize = "nationalize"

// Predictor returns nationality candidates for a name.
type Predictor interface {
	Predict(ctx context.Context, name string) (*nationalize.Prediction, error)
}

// Resolver answers name lookups from the store while they are fresh and
// from the predictor otherwise.
type Resolver struct {
	store     store.Store
	predictor Predictor
	countries *CountryCache
	gate      Gate
	clock     clockwork.Clock
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used for freshness decisions and refresh stamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithWindow sets the freshness window.
func WithWindow(d time.Duration) Option {
	return func(r *Resolver) { r.gate = NewGate(d) }
}

// WithBreaker guards predictor calls with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) { r.breaker = cb }
}

// WithMetrics records lookup paths and upstream latency to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver.
func NewResolver(st store.Store, predictor Predictor, countries *CountryCache, opts ...Option) *Resolver {
	r := &Resolver{
		store:     st,
		predictor: predictor,
		countries: countries,
		gate:      NewGate(DefaultWindow),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the nationality breakdown for name. Every call that gets
// past validation increments the stored request counter once.
//
// On the fresh path the reported count is the stored counter. On the
// refresh path it is the predictor's sample size.
func (r *Resolver) Resolve(ctx context.Context, name string) (*model.Lookup, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "Name parameter is required"}
	}

	rec, err := r.store.FindName(ctx, name)
	if err != nil {
		r.metrics.IncLookup(metrics.PathError)
		return nil, eris.Wrap(err, "resolve: find name")
	}

	now := r.clock.Now()
	verdict := r.gate.Verdict(rec, now)
	zap.L().Debug("resolve: freshness", zap.String("name", name), zap.Stringer("verdict", verdict))

	if verdict == Fresh {
		return r.fromStore(ctx, name, rec)
	}
	return r.refresh(ctx, name, now)
}

func (r *Resolver) fromStore(ctx context.Context, name string, rec *model.NameRecord) (*model.Lookup, error) {
	updated, err := r.store.IncrementName(ctx, rec.ID)
	if err != nil {
		r.metrics.IncLookup(metrics.PathError)
		return nil, eris.Wrap(err, "resolve: increment name")
	}

	links, err := r.store.ListLinks(ctx, rec.ID)
	if err != nil {
		r.metrics.IncLookup(metrics.PathError)
		return nil, eris.Wrap(err, "resolve: list links")
	}

	r.metrics.IncLookup(metrics.PathFresh)
	return model.NewLookup(name, updated.Count, links), nil
}

func (r *Resolver) refresh(ctx context.Context, name string, now time.Time) (*model.Lookup, error) {
	start := time.Now()
	pred, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*nationalize.Prediction, error) {
		return r.predictor.Predict(ctx, name)
	})
	r.metrics.ObserveUpstream(serviceNationalize, start, err)
	if err != nil {
		r.metrics.IncLookup(metrics.PathError)
		zap.L().Warn("resolve: predictor failed",
			zap.String("name", name),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return nil, &UpstreamError{Service: serviceNationalize, Err: err}
	}

	if len(pred.Country) == 0 {
		r.metrics.IncLookup(metrics.PathNotFound)
		return nil, &NotFoundError{Name: name}
	}

	rec, err := r.store.UpsertName(ctx, name, now)
	if err != nil {
		r.metrics.IncLookup(metrics.PathError)
		return nil, eris.Wrap(err, "resolve: upsert name")
	}

	// Links written before a failed country stay committed.
	countries := make([]model.CountryProbability, 0, len(pred.Country))
	for _, guess := range pred.Country {
		country, err := r.countries.Ensure(ctx, guess.CountryID)
		if err != nil {
			r.metrics.IncLookup(metrics.PathError)
			return nil, err
		}
		if err := r.store.UpsertLink(ctx, rec.ID, country.ID, guess.Probability); err != nil {
			r.metrics.IncLookup(metrics.PathError)
			return nil, eris.Wrap(err, "resolve: upsert link")
		}
		countries = append(countries, model.CountryProbability{
			CountryCode: country.Code,
			CountryName: country.Name,
			Probability: guess.Probability,
		})
	}

	r.metrics.IncLookup(metrics.PathRefresh)
	zap.L().Info("resolve: refreshed",
		zap.String("name", name),
		zap.Int64("count", pred.Count),
		zap.Int("countries", len(countries)),
	)
	return model.NewLookup(name, pred.Count, countries), nil
}
