// Package restcountries provides a client for the REST Countries v3.1 API.
package restcountries

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/qabilityp/namechecker/internal/resilience"
)

// DefaultBaseURL is the public REST Countries endpoint.
const DefaultBaseURL = "https://restcountries.com"

const maxBodyBytes = 4 << 20

// ErrEmptyResult is returned when the lookup succeeds but carries no country.
var ErrEmptyResult = eris.New("restcountries: empty result")

// Client fetches country metadata by ISO 3166-1 alpha-2 code.
type Client interface {
	Alpha(ctx context.Context, code string) (*Country, error)
}

// Country holds the consumed subset of a REST Countries record.
type Country struct {
	Name        Name        `json:"name"`
	Region      string      `json:"region"`
	Independent *bool       `json:"independent"`
	Maps        Maps        `json:"maps"`
	Capital     []string    `json:"capital"`
	CapitalInfo CapitalInfo `json:"capitalInfo"`
	Flags       Flags       `json:"flags"`
	CoatOfArms  CoatOfArms  `json:"coatOfArms"`
	Borders     []string    `json:"borders"`
}

// Name holds the country names.
type Name struct {
	Common   string `json:"common"`
	Official string `json:"official"`
}

// Maps holds map links.
type Maps struct {
	GoogleMaps     string `json:"googleMaps"`
	OpenStreetMaps string `json:"openStreetMaps"`
}

// CapitalInfo holds capital coordinates as [lat, lng].
type CapitalInfo struct {
	LatLng []float64 `json:"latlng"`
}

// Flags holds flag image links.
type Flags struct {
	PNG string `json:"png"`
	SVG string `json:"svg"`
	Alt string `json:"alt"`
}

// CoatOfArms holds coat-of-arms image links.
type CoatOfArms struct {
	PNG string `json:"png"`
	SVG string `json:"svg"`
}

// IsIndependent reports the independent flag, defaulting to true when absent.
func (c *Country) IsIndependent() bool {
	if c.Independent == nil {
		return true
	}
	return *c.Independent
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each Alpha call, including the rate limiter wait.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

type httpClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a REST Countries client. Calls are single-attempt.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		timeout: 5 * time.Second,
		http:    &http.Client{},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Alpha fetches the record for code and returns the first element of the
// response array.
func (c *httpClient) Alpha(ctx context.Context, code string) (*Country, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "restcountries: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v3.1/alpha/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, eris.Wrap(err, "restcountries: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "restcountries: request %s", code)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "restcountries: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("restcountries: unexpected status %d for %s", resp.StatusCode, code)
		return nil, resilience.StatusError(statusErr, resp.StatusCode)
	}

	var countries []Country
	if err := json.Unmarshal(body, &countries); err != nil {
		return nil, eris.Wrapf(err, "restcountries: decode response for %s", code)
	}
	if len(countries) == 0 {
		return nil, eris.Wrapf(ErrEmptyResult, "restcountries: alpha %s", code)
	}
	return &countries[0], nil
}
