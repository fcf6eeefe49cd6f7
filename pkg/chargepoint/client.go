// Package chargepoint queries the ChargePoint station map endpoint for the
// stations inside a bounding box.
package chargepoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/resilience"
)

const (
	// DefaultBaseURL is the public map endpoint.
	DefaultBaseURL = "https://mc.chargepoint.com/map-prod/get"
	// DefaultPageSize is the page size requested per query. The endpoint
	// truncates silently once a region holds more stations.
	DefaultPageSize = 100
	// DefaultTimeout bounds one request.
	DefaultTimeout = 20 * time.Second

	defaultUserLat = 49.2626692
	defaultUserLon = -123.24743289999999

	maxBody = 16 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserLocation sets the user position reported with each query.
func WithUserLocation(lat, lon float64) Option {
	return func(c *Client) { c.userLat, c.userLon = lat, lon }
}

// WithPageSize sets the page size requested per query.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// Client fetches one page of station summaries per bounding box. It is safe
// for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	userLat    float64
	userLon    float64
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		pageSize:   DefaultPageSize,
		userLat:    defaultUserLat,
		userLon:    defaultUserLon,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the request URL for r: the query document is JSON encoded and
// escaped into the raw query string.
func (c *Client) URL(r geo.Rect) (string, error) {
	doc, err := json.Marshal(c.newRequest(r))
	if err != nil {
		return "", eris.Wrap(err, "chargepoint: encode query")
	}
	return c.baseURL + "?" + url.QueryEscape(string(doc)), nil
}

// Fetch queries the stations inside r. Non-2xx statuses and undecodable
// bodies are errors; 429 and 5xx responses are marked transient.
func (c *Client) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "chargepoint: rate limit")
	}

	reqURL, err := c.URL(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "chargepoint: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "chargepoint: request %s", r)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "chargepoint: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("chargepoint: status %d for %s", resp.StatusCode, r)
		if resilience.TransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	return Decode(body)
}

// Decode parses a map endpoint body.
func Decode(body []byte) (*model.Response, error) {
	var out model.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "chargepoint: decode response")
	}
	return &out, nil
}
