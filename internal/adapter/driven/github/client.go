// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/jonboulle/clockwork"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

const (
	defaultBaseURL = "https://api.github.com/"
	budgetWindow   = time.Hour
	perPage        = 100
)

// Options tunes the client. Zero values select the defaults.
type Options struct {
	// CallsPerHour caps upstream calls per rolling hour. Negative disables the cap.
	CallsPerHour int
	// Timeout bounds each individual HTTP call.
	Timeout time.Duration
	// QuotaRetries is how many times a quota-exhausted call waits for the
	// reset and retries before giving up.
	QuotaRetries int
	// TimeoutRetries is how many times a timed-out call is retried with
	// exponential backoff.
	TimeoutRetries int
	// MaxQuotaWait caps a single wait for an upstream quota reset.
	MaxQuotaWait time.Duration
	// RetryInterval is the initial backoff interval for timeout retries.
	RetryInterval time.Duration
	// MaxPages caps pagination per kind fetch.
	MaxPages int
	Clock    clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.CallsPerHour == 0 {
		o.CallsPerHour = 5000
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.QuotaRetries == 0 {
		o.QuotaRetries = 1
	}
	if o.TimeoutRetries == 0 {
		o.TimeoutRetries = 2
	}
	if o.MaxQuotaWait <= 0 {
		o.MaxQuotaWait = budgetWindow
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 10
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Client implements the driven.GitHubClient port. All calls share one
// call budget owned by the instance.
type Client struct {
	gh     *gh.Client
	budget *callBudget
	clock  clockwork.Clock
	opts   Options
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  2. httpcache (ETag-based conditional request caching)
//  3. call budget (hourly cap, blocks when spent)
//  4. http.DefaultTransport
func NewClient(token, baseURL string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	budget := newCallBudget(opts.Clock, opts.CallsPerHour, budgetWindow)

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = &budgetTransport{budget: budget, base: http.DefaultTransport}
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = opts.Timeout

	client := gh.NewClient(rateLimitClient).WithAuthToken(token)
	if err := setBaseURL(client, baseURL); err != nil {
		return nil, err
	}

	return &Client{gh: client, budget: budget, clock: opts.Clock, opts: opts}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
// The call budget is still applied on top of the client's transport.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	budget := newCallBudget(opts.Clock, opts.CallsPerHour, budgetWindow)

	hc := *httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &budgetTransport{budget: budget, base: base}
	if hc.Timeout == 0 {
		hc.Timeout = opts.Timeout
	}

	client := gh.NewClient(&hc)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if err := setBaseURL(client, baseURL); err != nil {
		return nil, err
	}

	return &Client{gh: client, budget: budget, clock: opts.Clock, opts: opts}, nil
}

func setBaseURL(client *gh.Client, baseURL string) error {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u
	return nil
}

// BudgetUsage returns the client-side hourly call budget.
func (c *Client) BudgetUsage() model.BudgetUsage {
	return c.budget.usage()
}

// Request performs a GET against endpoint (relative to the base URL, or
// absolute) with optional query params and returns the raw JSON body.
func (c *Client) Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u := strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}

	var body json.RawMessage
	_, err := c.call(ctx, "GET "+endpoint, func() (*gh.Response, error) {
		req, err := c.gh.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		body = nil
		return c.gh.Do(ctx, req, &body)
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// ValidateRepository returns nil if owner/repo exists and is readable.
func (c *Client) ValidateRepository(ctx context.Context, owner, repo string) error {
	_, err := c.call(ctx, "get repository "+owner+"/"+repo, func() (*gh.Response, error) {
		_, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	return err
}

// RateLimitStatus returns the upstream's view of the core REST quota.
func (c *Client) RateLimitStatus(ctx context.Context) (*model.RateLimitStatus, error) {
	raw, err := c.Request(ctx, "rate_limit", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Resources struct {
			Core gh.Rate `json:"core"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding rate limit status: %w", err)
	}

	core := payload.Resources.Core
	return &model.RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Used:      core.Used,
		Reset:     core.Reset.Time.UTC(),
	}, nil
}

// call runs fn under the client's retry policy. Timeouts are retried with
// exponential backoff; an exhausted upstream quota is waited out and retried
// up to QuotaRetries times; everything else fails immediately. The returned
// error is classified (see APIError).
func (c *Client) call(ctx context.Context, op string, fn func() (*gh.Response, error)) (*gh.Response, error) {
	var resp *gh.Response
	quotaWaits := 0

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.opts.TimeoutRetries)), ctx)

	err := backoff.Retry(func() error {
		for {
			r, err := fn()
			resp = r
			if err == nil {
				return nil
			}

			classified := classify(ctx, op, err, c.clock.Now())

			var apiErr *APIError
			switch {
			case errors.Is(classified, driven.ErrTimeout):
				slog.Warn("github call timed out", "op", op, "error", err)
				return classified
			case errors.Is(classified, driven.ErrQuotaExhausted) && quotaWaits < c.opts.QuotaRetries && errors.As(classified, &apiErr):
				quotaWaits++
				if werr := c.waitForReset(ctx, op, apiErr.ResetAt); werr != nil {
					return backoff.Permanent(werr)
				}
			default:
				return backoff.Permanent(classified)
			}
		}
	}, policy)

	return resp, err
}

func (c *Client) waitForReset(ctx context.Context, op string, resetAt time.Time) error {
	wait := min(max(resetAt.Sub(c.clock.Now()), 0), c.opts.MaxQuotaWait)

	slog.Warn("github quota exhausted, waiting for reset",
		"op", op,
		"reset_at", resetAt,
		"wait", wait.Round(time.Second),
	)

	if wait == 0 {
		return nil
	}

	select {
	case <-c.clock.After(wait):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: waiting for quota reset: %w", op, ctx.Err())
	}
}

// logRateLimit logs rate limit information from a GitHub API response.
// Warns when the remaining quota drops below 100.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
