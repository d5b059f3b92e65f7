package muzmo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
	"github.com/liuran001/MuzmoBot-Go/bot/worker"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL   = "https://rmr.muzmo.cc"
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	maxPageBytes = 4 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	UserAgent     string
	SearchTimeout time.Duration
	SearchRetries int
	HTTPClient    *http.Client
	Limiter       *worker.Limiter
	Logger        bot.Logger
}

// Client talks to the upstream music site.
type Client struct {
	base      *url.URL
	userAgent string
	timeout   time.Duration
	search    *retryablehttp.Client
	single    *retryablehttp.Client
	breaker   *gobreaker.CircuitBreaker
	limiter   *worker.Limiter
	logger    bot.Logger
}

// New creates a client with retry and circuit breaker.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("muzmo: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("muzmo: base url %q must be absolute", raw)
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := opts.SearchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := opts.SearchRetries
	if retries < 0 {
		retries = 0
	}

	settings := gobreaker.Settings{
		Name:        "muzmo-upstream",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A caller giving up says nothing about the upstream.
			if errors.Is(err, context.Canceled) {
				return true
			}
			var fe *FetchError
			return errors.As(err, &fe) && fe.Kind == FetchStatus && fe.StatusCode < 500
		},
	}
	if opts.Logger != nil {
		logger := opts.Logger
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}
	}

	return &Client{
		base:      base,
		userAgent: userAgent,
		timeout:   timeout,
		search:    newRetryClient(opts.HTTPClient, retries),
		single:    newRetryClient(opts.HTTPClient, 0),
		breaker:   gobreaker.NewCircuitBreaker(settings),
		limiter:   opts.Limiter,
		logger:    opts.Logger,
	}, nil
}

func newRetryClient(httpClient *http.Client, retries int) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	return client
}

// BaseURL returns a copy of the upstream base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// SearchURL returns the search page URL for query at the given page.
func (c *Client) SearchURL(query string, page int) string {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + "/search"
	u.RawQuery = "q=" + url.QueryEscape(query) + "&start=" + strconv.Itoa(page*ResultsPerPage)
	return u.String()
}

// InfoURL returns the info page URL of an item.
func (c *Client) InfoURL(itemID string) string {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + "/info"
	u.RawQuery = "id=" + url.QueryEscape(itemID)
	return u.String()
}

// FetchSearchPages fetches pages 0..pages-1 concurrently. A failing page never
// cancels its siblings; results come back in page order.
func (c *Client) FetchSearchPages(ctx context.Context, query string, pages int) []PageResult {
	if pages <= 0 {
		return nil
	}

	results := make([]PageResult, pages)
	var g errgroup.Group
	for page := 0; page < pages; page++ {
		g.Go(func() error {
			start := time.Now()
			body, err := c.fetch(ctx, c.search, c.SearchURL(query, page), c.timeout)
			results[page] = PageResult{Page: page, Body: body, Err: err}
			metrics.ObservePageFetch(fetchOutcome(err), time.Since(start))
			if err != nil && c.logger != nil {
				c.logger.Warn("search page fetch failed", "page", page, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FetchInfo issues exactly one request for the item's info page.
func (c *Client) FetchInfo(ctx context.Context, itemID string) ([]byte, error) {
	return c.fetch(ctx, c.single, c.InfoURL(itemID), c.timeout)
}

func (c *Client) fetch(ctx context.Context, client *retryablehttp.Client, target string, timeout time.Duration) ([]byte, error) {
	var body []byte
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.get(ctx, client, target)
		})
		if err != nil {
			return err
		}
		body = out.([]byte)
		return nil
	})
	if err != nil {
		return nil, classify(target, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, client *retryablehttp.Client, target string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: FetchStatus, URL: target, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

func classify(target string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: target, Err: err}
}

func fetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "transport"
}
