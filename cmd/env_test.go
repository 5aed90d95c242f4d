package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qabilityp/namechecker/internal/config"
)

func testConfig(t *testing.T, nationalizeURL, restCountriesURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Store:         config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "e2e.db")},
		Server:        config.ServerConfig{Port: 8000, CORSOrigins: []string{"*"}},
		Nationalize:   config.NationalizeConfig{BaseURL: nationalizeURL, TimeoutSecs: 5, RatePerSec: 100},
		RestCountries: config.RestCountriesConfig{BaseURL: restCountriesURL, TimeoutSecs: 5, RatePerSec: 100},
		Cache:         config.CacheConfig{FreshnessHours: 24, CountryTTLHours: 1},
		Circuit:       config.CircuitConfig{FailureThreshold: 5, ResetTimeoutSecs: 30},
		Auth:          config.AuthConfig{SigningKey: "e2e-key", Issuer: "namechecker", AccessTTLMins: 5, RefreshTTLHours: 24},
		Popular:       config.PopularConfig{Limit: 5},
		Lookup:        config.LookupConfig{MaxConcurrent: 2},
	}
}

func TestInitEnv_RejectsInvalidConfig(t *testing.T) {
	c := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	c.Auth.SigningKey = ""

	_, err := initEnv(context.Background(), c, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.signing_key")
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := testConfig(t, "", "")
	c.Store.Driver = "mysql"

	_, err := initStore(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestEndToEnd_SQLite(t *testing.T) {
	var predictCalls, alphaCalls atomic.Int32
	nationalizeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		predictCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":2394305,"name":"John","country":[{"country_id":"US","probability":0.029237653286472688}]}`))
	}))
	defer nationalizeSrv.Close()

	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alphaCalls.Add(1)
		assert.Equal(t, "/v3.1/alpha/US", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":{"common":"United States","official":"United States of America"},"region":"Americas","capital":["Washington, D.C."],"capitalInfo":{"latlng":[38.89,-77.05]}}]`))
	}))
	defer restSrv.Close()

	ctx := context.Background()
	c := testConfig(t, nationalizeSrv.URL, restSrv.URL)
	env, err := initEnv(ctx, c, "serve")
	require.NoError(t, err)
	defer env.Close()

	srv := httptest.NewServer(newHandler(env, c.Server.CORSOrigins))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}
	post := func(path, body string) (int, map[string]any) {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	// Three lookups: one refresh, two fresh reads.
	for i := 0; i < 3; i++ {
		code, _ := get("/names/?name=John")
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, int32(1), predictCalls.Load())
	assert.Equal(t, int32(1), alphaCalls.Load())

	code, body := get("/popular/?country=US")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"name":"John","count":3,"probability":0.029237653286472688}]`, body)

	code, body = get("/popular/?country=XX")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"No country found with code 'XX'."}`, body)

	country, err := env.Store.GetCountry(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, "Washington, D.C.", country.Capital)
	assert.Equal(t, "[38.89, -77.05]", country.CapitalCoordinates)
	assert.True(t, country.Independent)

	// Accounts.
	status, out := post("/register/", `{"username":"testuser","password":"testpass123"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, map[string]any{"username": "testuser"}, out)

	status, out = post("/register/", `{"username":"testuser","password":"testpass123"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out, "username")

	status, out = post("/token/", `{"username":"testuser","password":"testpass123"}`)
	require.Equal(t, http.StatusOK, status)
	refresh, _ := out["refresh"].(string)
	assert.NotEmpty(t, out["access"])
	assert.NotEmpty(t, refresh)

	status, out = post("/token/refresh/", `{"refresh":"`+refresh+`"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out["access"])

	status, _ = post("/token/", `{"username":"testuser","password":"wrongpass"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	code, body = get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","circuits":{"nationalize":"closed","restcountries":"closed"}}`, body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `namechecker_lookups_total{path="fresh"} 2`)
	assert.Contains(t, body, `namechecker_lookups_total{path="refresh"} 1`)
}

func TestEndToEnd_UpstreamFailure(t *testing.T) {
	nationalizeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer nationalizeSrv.Close()

	c := testConfig(t, nationalizeSrv.URL, "http://127.0.0.1:1")
	env, err := initEnv(context.Background(), c, "lookup")
	require.NoError(t, err)
	defer env.Close()

	results, err := resolveAll(context.Background(), env.Resolver, []string{"John"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Lookup)
	assert.Contains(t, results[0].Error, "502")
}
