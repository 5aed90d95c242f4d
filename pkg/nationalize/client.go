// Package nationalize provides a client for the nationalize.io name
// nationality prediction API.
package nationalize

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

// DefaultBaseURL is the public nationalize.io endpoint.
const DefaultBaseURL = "https://api.nationalize.io"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Client predicts the likely countries of origin for a name.
type Client interface {
	Predict(ctx context.Context, name string) (*Prediction, error)
}

// Prediction is the parsed nationalize.io response.
type Prediction struct {
	Count   int64          `json:"count"`
	Name    string         `json:"name"`
	Country []CountryGuess `json:"country"`
}

// CountryGuess is one candidate country with its probability.
type CountryGuess struct {
	CountryID   string  `json:"country_id"`
	Probability float64 `json:"probability"`
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

// WithAPIKey sends the key as the apikey query parameter.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithTimeout bounds each Predict call, including the rate limiter wait.
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
	apiKey  string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a nationalize.io client. Calls are single-attempt.
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

// Predict fetches the country candidates for name.
func (c *httpClient) Predict(ctx context.Context, name string) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nationalize: rate limit wait")
	}

	q := url.Values{"name": {name}}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nationalize: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nationalize: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "nationalize: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("nationalize: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
		return nil, resilience.StatusError(statusErr, resp.StatusCode)
	}

	var p Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "nationalize: decode response")
	}
	return &p, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}
