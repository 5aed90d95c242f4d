package nationality

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/qabilityp/namechecker/internal/metrics"
	"github.com/qabilityp/namechecker/internal/model"
	"github.com/qabilityp/namechecker/internal/resilience"
	"github.com/qabilityp/namechecker/pkg/restcountries"
)

const serviceRestCountries = "restcountries"

// fetchTimeout bounds a shared metadata fetch once it is detached from the
// caller that started it.
const fetchTimeout = 30 * time.Second

// CountryStore is the persistence the country cache needs.
type CountryStore interface {
	GetCountry(ctx context.Context, code string) (*model.Country, error)
	CreateCountry(ctx context.Context, c model.Country) (*model.Country, error)
}

// MetadataFetcher fetches country metadata from the upstream service.
type MetadataFetcher interface {
	Alpha(ctx context.Context, code string) (*restcountries.Country, error)
}

// CountryCache is a read-through cache over the country table. Stored
// countries are immutable, so cached entries only expire to bound memory.
type CountryCache struct {
	store   CountryStore
	fetcher MetadataFetcher
	cache   *ttlcache.Cache[string, *model.Country]
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
}

// CountryOption configures a CountryCache.
type CountryOption func(*CountryCache)

// WithCountryBreaker guards metadata fetches with cb.
func WithCountryBreaker(cb *resilience.CircuitBreaker) CountryOption {
	return func(c *CountryCache) { c.breaker = cb }
}

// WithCountryMetrics records upstream latency to m.
func WithCountryMetrics(m *metrics.Metrics) CountryOption {
	return func(c *CountryCache) { c.metrics = m }
}

// NewCountryCache creates a CountryCache. A non-positive ttl defaults to 24h.
func NewCountryCache(st CountryStore, fetcher MetadataFetcher, ttl time.Duration, opts ...CountryOption) *CountryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &CountryCache{
		store:   st,
		fetcher: fetcher,
		cache:   ttlcache.New(ttlcache.WithTTL[string, *model.Country](ttl)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the expiration loop until Stop is called.
func (c *CountryCache) Start() { c.cache.Start() }

// Stop ends the expiration loop.
func (c *CountryCache) Stop() { c.cache.Stop() }

// Lookup returns the stored country for code, or nil if it has never been
// seen. It never calls the upstream service.
func (c *CountryCache) Lookup(ctx context.Context, code string) (*model.Country, error) {
	if item := c.cache.Get(code); item != nil {
		return item.Value(), nil
	}
	country, err := c.store.GetCountry(ctx, code)
	if err != nil {
		return nil, eris.Wrapf(err, "countries: lookup %s", code)
	}
	if country != nil {
		c.cache.Set(code, country, ttlcache.DefaultTTL)
	}
	return country, nil
}

// Ensure returns the stored country for code, fetching its metadata and
// creating the row on first encounter. Concurrent callers for the same code
// share one upstream fetch, which runs detached from any single caller's
// cancellation. Fetch failures are returned as *UpstreamError.
func (c *CountryCache) Ensure(ctx context.Context, code string) (*model.Country, error) {
	country, err := c.Lookup(ctx, code)
	if err != nil || country != nil {
		return country, err
	}

	ch := c.group.DoChan(code, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, code)
	})

	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "countries: ensure %s", code)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		country = res.Val.(*model.Country)
	}

	c.cache.Set(code, country, ttlcache.DefaultTTL)
	return country, nil
}

func (c *CountryCache) fetch(ctx context.Context, code string) (*model.Country, error) {
	// Another caller may have created it while we waited.
	if existing, err := c.store.GetCountry(ctx, code); err != nil || existing != nil {
		return existing, err
	}

	start := time.Now()
	info, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*restcountries.Country, error) {
		return c.fetcher.Alpha(ctx, code)
	})
	c.metrics.ObserveUpstream(serviceRestCountries, start, err)
	if err != nil {
		zap.L().Warn("countries: metadata fetch failed",
			zap.String("code", code),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return nil, &UpstreamError{Service: serviceRestCountries, Err: err}
	}

	created, err := c.store.CreateCountry(ctx, countryFromMetadata(code, info))
	if err != nil {
		return nil, eris.Wrapf(err, "countries: create %s", code)
	}
	zap.L().Info("countries: created", zap.String("code", code), zap.String("name", created.Name))
	return created, nil
}

func countryFromMetadata(code string, info *restcountries.Country) model.Country {
	return model.Country{
		Code:               code,
		Name:               info.Name.Common,
		CommonName:         info.Name.Common,
		Region:             info.Region,
		Independent:        info.IsIndependent(),
		GoogleMaps:         info.Maps.GoogleMaps,
		OpenStreetMaps:     info.Maps.OpenStreetMaps,
		Capital:            strings.Join(info.Capital, ", "),
		CapitalCoordinates: formatLatLng(info.CapitalInfo.LatLng),
		FlagPNG:            info.Flags.PNG,
		FlagSVG:            info.Flags.SVG,
		FlagAlt:            info.Flags.Alt,
		CoatOfArmsPNG:      info.CoatOfArms.PNG,
		CoatOfArmsSVG:      info.CoatOfArms.SVG,
		Borders:            strings.Join(info.Borders, ", "),
	}
}

// formatLatLng renders coordinates as a bracketed list, e.g. "[38.0, -97.0]".
func formatLatLng(coords []float64) string {
	parts := make([]string, len(coords))
	for i, f := range coords {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
