package nationality

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qabilityp/namechecker/internal/store"
	"github.com/qabilityp/namechecker/pkg/nationalize"
	"github.com/qabilityp/namechecker/pkg/restcountries"
)

// --- Predictor Mock ---

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) Predict(ctx context.Context, name string) (*nationalize.Prediction, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nationalize.Prediction), args.Error(1)
}

// --- Metadata Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Alpha(ctx context.Context, code string) (*restcountries.Country, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restcountries.Country), args.Error(1)
}

func metadata(common string) *restcountries.Country {
	return &restcountries.Country{Name: restcountries.Name{Common: common}}
}

func prediction(name string, count int64, guesses ...nationalize.CountryGuess) *nationalize.Prediction {
	return &nationalize.Prediction{Name: name, Count: count, Country: guesses}
}

func guess(code string, p float64) nationalize.CountryGuess {
	return nationalize.CountryGuess{CountryID: code, Probability: p}
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.SQLiteStore
	predictor *mockPredictor
	fetcher   *mockFetcher
	clock     *clockwork.FakeClock
	countries *CountryCache
	resolver  *Resolver
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "names.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     newTestStore(t),
		predictor: &mockPredictor{},
		fetcher:   &mockFetcher{},
		clock:     clockwork.NewFakeClockAt(epoch),
	}
	f.countries = NewCountryCache(f.store, f.fetcher, time.Hour)
	f.resolver = NewResolver(f.store, f.predictor, f.countries, append([]Option{WithClock(f.clock)}, opts...)...)
	return f
}
