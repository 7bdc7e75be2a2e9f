// Package acs fetches American Community Survey 5-year estimates from the
// Census Data API at tract, block-group and county level.
package acs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
)

const (
	// ServiceName identifies the Census Data API in errors and call metrics.
	ServiceName = "acs"

	defaultBaseURL = "https://api.census.gov/data"
	defaultYear    = 2022
)

// CallObserver is notified once per upstream request with an outcome of
// "ok", "not_found" or "error".
type CallObserver func(service, outcome string)

// Client retrieves ACS variables for one geography level per call. It does
// not retry or cache.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	year       int
	apiKey     string
	timeout    time.Duration
	observe    CallObserver
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the Data API root (default https://api.census.gov/data).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithYear selects the ACS vintage.
func WithYear(year int) Option {
	return func(c *Client) {
		if year > 0 {
			c.year = year
		}
	}
}

// WithAPIKey sets the Census API key. Requests work without one at a lower
// upstream quota.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers a per-call observer.
func WithObserver(obs CallObserver) Option {
	return func(c *Client) { c.observe = obs }
}

// NewClient creates an ACS client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		baseURL:    defaultBaseURL,
		year:       defaultYear,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DatasetYear returns the ACS vintage as a string, e.g. "2022".
func (c *Client) DatasetYear() string {
	return strconv.Itoa(c.year)
}

// FetchTract retrieves the full tract variable set.
func (c *Client) FetchTract(ctx context.Context, geo model.GeoIdentifier) (*model.TractData, error) {
	r, err := c.get(ctx, tractVariables, url.Values{
		"for": {"tract:" + geo.TractCode},
		"in":  {"state:" + geo.StateFIPS + " county:" + geo.CountyFIPS},
	})
	if err != nil {
		return nil, err
	}
	return &model.TractData{
		TotalPopulation:       r.count(varTotalPopulation),
		MedianHouseholdIncome: r.count(varMedianHouseholdIncome),
		OccupiedHousingUnits:  r.count(varOccupiedUnits),
		OwnerOccupiedUnits:    r.count(varOwnerOccupied),
		RenterOccupiedUnits:   r.count(varRenterOccupied),
		TotalHousingUnits:     r.count(varTotalHousingUnits),
		VacantUnits:           r.count(varVacantUnits),
		MedianAge:             r.rate(varMedianAge),
		BelowPoverty:          r.count(varBelowPoverty),
		PovertyUniverse:       r.count(varPovertyUniverse),
		Unemployed:            r.count(varUnemployed),
		LaborForce:            r.count(varLaborForce),
		TotalHouseholds:       r.count(varTotalHouseholds),
		AvgHouseholdSize:      r.rate(varAvgHouseholdSize),
	}, nil
}

// FetchBlockGroup retrieves the reduced block-group set. Suppressed
// estimates come back as nil fields.
func (c *Client) FetchBlockGroup(ctx context.Context, geo model.GeoIdentifier) (*model.BlockGroupData, error) {
	r, err := c.get(ctx, blockGroupVariables, url.Values{
		"for": {"block group:" + geo.BlockGroupCode},
		"in":  {"state:" + geo.StateFIPS + " county:" + geo.CountyFIPS + " tract:" + geo.TractCode},
	})
	if err != nil {
		return nil, err
	}
	code := r["block group"]
	if code == "" {
		code = geo.BlockGroupCode
	}
	return &model.BlockGroupData{
		TotalPopulation: r.nullable(varTotalPopulation),
		OwnerOccupied:   r.nullable(varOwnerOccupied),
		RenterOccupied:  r.nullable(varRenterOccupied),
		BlockGroupCode:  code,
	}, nil
}

// FetchCounty retrieves the county variable set.
func (c *Client) FetchCounty(ctx context.Context, geo model.GeoIdentifier) (*model.CountyData, error) {
	r, err := c.get(ctx, countyVariables, url.Values{
		"for": {"county:" + geo.CountyFIPS},
		"in":  {"state:" + geo.StateFIPS},
	})
	if err != nil {
		return nil, err
	}
	return &model.CountyData{
		CountyName:            geo.CountyName,
		TotalPopulation:       r.count(varTotalPopulation),
		MedianHouseholdIncome: r.count(varMedianHouseholdIncome),
		OccupiedHousingUnits:  r.count(varOccupiedUnits),
		OwnerOccupied:         r.count(varOwnerOccupied),
		RenterOccupied:        r.count(varRenterOccupied),
		MedianAge:             r.rate(varMedianAge),
	}, nil
}

// FetchLevel dispatches to the level-specific fetch.
func (c *Client) FetchLevel(ctx context.Context, level model.Level, geo model.GeoIdentifier) (model.RawLevel, error) {
	out := model.RawLevel{Level: level}
	var err error
	switch level {
	case model.LevelTract:
		out.Tract, err = c.FetchTract(ctx, geo)
	case model.LevelBlockGroup:
		out.BlockGroup, err = c.FetchBlockGroup(ctx, geo)
	case model.LevelCounty:
		out.County, err = c.FetchCounty(ctx, geo)
	default:
		err = eris.Errorf("acs: unknown level %q", level)
	}
	return out, err
}

func (c *Client) get(ctx context.Context, vars []string, geoParams url.Values) (row, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "acs: rate limit")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{"get": {strings.Join(vars, ",")}}
	for k, v := range geoParams {
		params[k] = v
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	reqURL := c.baseURL + "/" + strconv.Itoa(c.year) + "/acs/acs5?" + params.Encode()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "acs: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, 0, eris.Wrap(err, "acs: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, 0, eris.Wrap(err, "acs: read body"))
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		c.record("not_found")
		return nil, eris.Wrap(censuserr.ErrGeographyNotFound, "acs: no content")
	case resp.StatusCode == http.StatusBadRequest && isUnknownGeography(body):
		c.record("not_found")
		return nil, eris.Wrap(censuserr.ErrGeographyNotFound, "acs: unknown geography")
	case resp.StatusCode != http.StatusOK && !censuserr.IsTransientHTTPStatus(resp.StatusCode):
		c.record("error")
		return nil, eris.Wrapf(censuserr.Rejected(ServiceName, resp.StatusCode), "acs: %s", truncate(body, 200))
	case resp.StatusCode != http.StatusOK:
		c.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, resp.StatusCode,
			eris.Errorf("acs: returned status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		c.record("not_found")
		return nil, eris.Wrap(censuserr.ErrGeographyNotFound, "acs: empty body")
	}

	r, err := parseTable(body)
	if err != nil {
		if censuserr.IsGeographyNotFound(err) {
			c.record("not_found")
			return nil, eris.Wrap(err, "acs: no data rows")
		}
		c.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, resp.StatusCode, err)
	}
	c.record("ok")
	return r, nil
}

func (c *Client) record(outcome string) {
	if c.observe != nil {
		c.observe(ServiceName, outcome)
	}
}

func isUnknownGeography(body []byte) bool {
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "unknown/unsupported geography") ||
		strings.Contains(msg, "ambiguous geography")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
