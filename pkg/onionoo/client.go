package onionoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/matzehuels/relaymap/pkg/cache"
	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/httputil"
	"github.com/matzehuels/relaymap/pkg/observability"
	"github.com/matzehuels/relaymap/pkg/relay"
)

// Defaults applied by [NewClient] to zero Config fields.
const (
	DefaultBaseURL           = "https://onionoo.torproject.org"
	DefaultPageSize          = 2000
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 2.0
	DefaultCacheTTL          = 7 * 24 * time.Hour
	DefaultUserAgent         = "relaymap (https://github.com/matzehuels/relaymap)"
)

// Fields lists the relay fields requested from the details document.
const Fields = "fingerprint,nickname,or_addresses,flags,running,country"

const cacheNamespace = "onionoo"

// Config configures a [Client]. Zero fields take the package defaults.
type Config struct {
	BaseURL string
	// PageSize is the limit sent per request. Negative disables paging and
	// fetches the whole document in one request; zero means DefaultPageSize.
	PageSize          int
	Timeout           time.Duration // per request, including the body
	RequestsPerSecond float64
	Policy            httputil.Policy
	Cache             cache.Cache // nil disables conditional requests
	CacheTTL          time.Duration
	UserAgent         string
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// Client fetches relays from an Onionoo directory.
// It is safe for concurrent use, though a run fetches pages sequentially.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	cacheTTL  time.Duration
	limiter   *rate.Limiter
	policy    httputil.Policy
	baseURL   string
	pageSize  int
	timeout   time.Duration
	userAgent string
	logger    *log.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		http:      cfg.HTTPClient,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		policy:    cfg.Policy,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:  cfg.PageSize,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.cache == nil {
		c.cache = cache.NewNullCache()
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = DefaultCacheTTL
	}
	if c.policy == (httputil.Policy{}) {
		c.policy = httputil.DefaultPolicy
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.pageSize == 0 {
		c.pageSize = DefaultPageSize
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

// FetchRunningRelays fetches every page and returns the valid running relays
// sorted by fingerprint. Malformed relays are logged and dropped.
func (c *Client) FetchRunningRelays(ctx context.Context) ([]relay.Record, error) {
	raws, err := c.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	records, _ := relay.Normalize(raws, c.logger)
	return records, nil
}

// FetchRaw fetches every page of the details document and returns the relay
// objects in page order, unvalidated. Repeated fingerprints are kept here;
// [relay.Normalize] keeps the first valid copy, so a malformed copy never
// hides a good one.
func (c *Client) FetchRaw(ctx context.Context) ([]relay.Raw, error) {
	var all []relay.Raw
	for offset, page := 0, 1; ; page++ {
		details, err := c.FetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, details.Relays...)
		c.logger.Debug("fetched directory page", "page", page, "offset", offset, "relays", len(details.Relays))

		if !c.hasMore(details) {
			break
		}
		offset += len(details.Relays)
	}
	return all, nil
}

// hasMore reports whether another page follows details.
func (c *Client) hasMore(details *Details) bool {
	if c.pageSize < 0 || len(details.Relays) == 0 {
		return false
	}
	if len(details.Relays) < c.pageSize {
		return false
	}
	if details.RelaysTruncated != nil && *details.RelaysTruncated == 0 {
		return false
	}
	return true
}

// FetchPage fetches and decodes the page starting at offset.
func (c *Client) FetchPage(ctx context.Context, offset int) (*Details, error) {
	pageURL := c.pageURL(offset)

	var body []byte
	err := httputil.RetryObserved(ctx, c.policy, c.logRetry(pageURL), func() error {
		var err error
		body, err = c.get(ctx, pageURL)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "fetch %s", pageURL)
	}

	var details Details
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "decode %s", pageURL)
	}
	return &details, nil
}

func (c *Client) pageURL(offset int) string {
	u := fmt.Sprintf("%s/details?type=relay&running=true&fields=%s", c.baseURL, Fields)
	if c.pageSize > 0 {
		u += fmt.Sprintf("&limit=%d&offset=%d", c.pageSize, offset)
	}
	return u
}

func (c *Client) logRetry(pageURL string) httputil.Observer {
	return func(t httputil.Transition, err error) {
		c.logger.Warn("directory request failed, retrying",
			"url", pageURL, "attempt", t.Attempt, "rate_limit_waits", t.RateLimitWaits,
			"delay", t.Delay, "err", err)
	}
}

// get performs one attempt. The returned error is classified for the retry
// state machine: RateLimitedError for 429, RetryableError for transient
// failures, anything else is permanent.
func (c *Client) get(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	httputil.AcceptGzip(req)

	key := cache.HTTPKey(cacheNamespace, pageURL)
	cached, hasCached := c.lookup(ctx, key)
	if hasCached && cached.LastModified != "" {
		req.Header.Set("If-Modified-Since", cached.LastModified)
	}

	host, path := req.URL.Host, req.URL.Path
	observability.HTTP().OnRequest(ctx, req.Method, host, path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "request failed"))
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := readBody(resp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "read response body"))
		}
		c.store(ctx, key, resp.Header.Get("Last-Modified"), body)
		return body, nil

	case resp.StatusCode == http.StatusNotModified:
		if !hasCached {
			return nil, errors.New(errors.ErrCodeFetch, "304 Not Modified without a cached response")
		}
		c.logger.Debug("directory page not modified", "url", pageURL)
		return cached.Body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &errors.RateLimitedError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    fmt.Sprintf("status %d", resp.StatusCode),
		}

	case resp.StatusCode >= 500:
		return nil, errors.Retryable(errors.New(errors.ErrCodeNetwork, "status %d", resp.StatusCode))

	default:
		return nil, errors.New(errors.ErrCodeFetch, "unexpected status %d", resp.StatusCode)
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := httputil.Body(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (c *Client) lookup(ctx context.Context, key string) (cachedPage, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug("cache read failed", "err", err)
		return cachedPage{}, false
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, cacheNamespace)
		return cachedPage{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		observability.Cache().OnCacheMiss(ctx, cacheNamespace)
		return cachedPage{}, false
	}
	observability.Cache().OnCacheHit(ctx, cacheNamespace)
	return page, true
}

// store keeps body for conditional requests. Without a Last-Modified stamp
// the body could never be revalidated, so nothing is stored.
func (c *Client) store(ctx context.Context, key, lastModified string, body []byte) {
	if lastModified == "" {
		return
	}
	data, err := json.Marshal(cachedPage{LastModified: lastModified, Body: body})
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.logger.Debug("cache write failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, cacheNamespace, len(data))
}

// parseRetryAfter returns the wait requested by a Retry-After header in whole
// seconds, rounding up. Both delta-seconds and HTTP-date forms are accepted;
// anything else yields 0.
func parseRetryAfter(v string, now time.Time) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return max(n, 0)
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(int(math.Ceil(t.Sub(now).Seconds())), 0)
	}
	return 0
}

// Endpoint returns the directory base URL.
func (c *Client) Endpoint() string { return c.baseURL }
