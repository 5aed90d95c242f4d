package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qabilityp/namechecker/internal/auth"
	"github.com/qabilityp/namechecker/internal/config"
	"github.com/qabilityp/namechecker/internal/metrics"
	"github.com/qabilityp/namechecker/internal/nationality"
	"github.com/qabilityp/namechecker/internal/resilience"
	"github.com/qabilityp/namechecker/internal/store"
	"github.com/qabilityp/namechecker/pkg/nationalize"
	"github.com/qabilityp/namechecker/pkg/restcountries"
)

// appEnv holds the wired services shared by the subcommands.
type appEnv struct {
	Store     store.Store
	Countries *nationality.CountryCache
	Resolver  *nationality.Resolver
	Ranker    *nationality.Ranker
	Accounts  *auth.Service
	Breakers  *resilience.ServiceBreakers
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
}

// Close releases the store.
func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "namechecker.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the upstream clients, breakers, metrics and services.
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return wireEnv(c, st, nil, nil), nil
}

// wireEnv builds the services on top of an open store. Nil clients are
// replaced with HTTP clients built from config.
func wireEnv(c *config.Config, st store.Store, predictor nationality.Predictor, fetcher nationality.MetadataFetcher) *appEnv {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cbCfg := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
	cbCfg.OnStateChange = func(service string, from, to resilience.CircuitState) {
		m.SetCircuitState(service, int(to))
		zap.L().Warn("circuit breaker state change",
			zap.String("service", service),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	breakers := resilience.NewServiceBreakers(cbCfg)

	if predictor == nil {
		opts := []nationalize.Option{
			nationalize.WithBaseURL(c.Nationalize.BaseURL),
			nationalize.WithTimeout(c.Nationalize.Timeout()),
			nationalize.WithRateLimit(c.Nationalize.RatePerSec),
		}
		if c.Nationalize.Key != "" {
			opts = append(opts, nationalize.WithAPIKey(c.Nationalize.Key))
		}
		predictor = nationalize.NewClient(opts...)
	}
	if fetcher == nil {
		fetcher = restcountries.NewClient(
			restcountries.WithBaseURL(c.RestCountries.BaseURL),
			restcountries.WithTimeout(c.RestCountries.Timeout()),
			restcountries.WithRateLimit(c.RestCountries.RatePerSec),
		)
	}

	countries := nationality.NewCountryCache(st, fetcher, c.Cache.CountryTTL(),
		nationality.WithCountryBreaker(breakers.Get("restcountries")),
		nationality.WithCountryMetrics(m),
	)
	resolver := nationality.NewResolver(st, predictor, countries,
		nationality.WithWindow(c.Cache.FreshnessWindow()),
		nationality.WithBreaker(breakers.Get("nationalize")),
		nationality.WithMetrics(m),
	)
	ranker := nationality.NewRanker(st, countries, c.Popular.Limit, m)
	accounts := auth.NewService(st, auth.Config{
		SigningKey: c.Auth.SigningKey,
		Issuer:     c.Auth.Issuer,
		AccessTTL:  time.Duration(c.Auth.AccessTTLMins) * time.Minute,
		RefreshTTL: time.Duration(c.Auth.RefreshTTLHours) * time.Hour,
	})

	return &appEnv{
		Store:     st,
		Countries: countries,
		Resolver:  resolver,
		Ranker:    ranker,
		Accounts:  accounts,
		Breakers:  breakers,
		Registry:  reg,
		Metrics:   m,
	}
}
