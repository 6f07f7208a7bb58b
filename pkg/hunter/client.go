// Package hunter provides a client for the Hunter.io email finder API.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/coldreach/coldreach/internal/resilience"
)

const (
	defaultBaseURL = "https://api.hunter.io/v2"

	// MinLimit and MaxLimit bound the number of emails per domain search.
	MinLimit = 1
	MaxLimit = 10
)

// ErrNoAPIKey is returned when the client was built without an API key.
var ErrNoAPIKey = eris.New("hunter: api key not configured")

// Client defines the Hunter operations.
type Client interface {
	// DomainSearch lists people with a known position at a domain or
	// company name.
	DomainSearch(ctx context.Context, req DomainSearchRequest) (*DomainSearchResult, error)
	// FindCompany returns company-level enrichment for a domain.
	FindCompany(ctx context.Context, domain string) (*Company, error)
}

// DomainSearchRequest selects the company to search. Domain wins when both
// are set.
type DomainSearchRequest struct {
	Domain  string
	Company string
	Limit   int
}

// DomainSearchResult is the data block of a domain-search response.
type DomainSearchResult struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Headcount    string  `json:"headcount"`
	Emails       []Email `json:"emails"`
}

// Email is a single person found for a domain.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	Seniority  string `json:"seniority"`
	Department string `json:"department"`
	LinkedIn   string `json:"linkedin"`
}

// FullName joins first and last name.
func (e Email) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Company is the data block of a companies/find response.
type Company struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	Metrics     struct {
		Employees string `json:"employees"`
	} `json:"metrics"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Hunter API client. The default rate is 10 requests per
// second, Hunter's documented ceiling for domain search.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("hunter", "request")
	}
	return c
}

// ClampLimit forces a domain-search limit into [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	return max(MinLimit, min(n, MaxLimit))
}

func (c *httpClient) DomainSearch(ctx context.Context, req DomainSearchRequest) (*DomainSearchResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(ClampLimit(req.Limit)))
	params.Set("required_field", "position")
	switch {
	case req.Domain != "":
		params.Set("domain", req.Domain)
	case req.Company != "":
		params.Set("company", req.Company)
	default:
		return nil, eris.New("hunter: domain search needs a domain or company")
	}

	var out struct {
		Data DomainSearchResult `json:"data"`
	}
	if err := c.get(ctx, "/domain-search", params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) FindCompany(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, eris.New("hunter: find company needs a domain")
	}
	params := url.Values{}
	params.Set("domain", domain)

	var out struct {
		Data Company `json:"data"`
	}
	if err := c.get(ctx, "/companies/find", params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, dst any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "hunter: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "hunter: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "hunter: GET %s", path)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "hunter: read response")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("hunter: %s status %d: %s", path, resp.StatusCode, apiErrorDetail(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		return body, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrap(err, "hunter: unmarshal response")
	}
	return nil
}

// apiErrorDetail pulls the first error detail out of a Hunter error body.
func apiErrorDetail(body []byte) string {
	var e struct {
		Errors []struct {
			ID      string `json:"id"`
			Details string `json:"details"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &e) == nil && len(e.Errors) > 0 {
		return e.Errors[0].ID + ": " + e.Errors[0].Details
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
