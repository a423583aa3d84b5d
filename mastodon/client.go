package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"threadsrss/handle"
)

// DefaultBaseURL is the Mastodon instance bridging Threads accounts
const DefaultBaseURL = "https://mastodon.social/api/v1"

// DefaultStatusesLimit is how many recent statuses a sync asks for
const DefaultStatusesLimit = 40

var upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "threadsrss_upstream_request_duration_seconds",
	Help:    "Duration of requests to the upstream Mastodon API",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
}, []string{"endpoint", "status"})

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the upstream Mastodon compatible API. It does no caching
// and no retries: every call is one round trip.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: config.UserAgent,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// LookupAccount resolves a handle to its upstream account. The handle is
// normalized first. A 404 maps to ErrAccountNotFound, anything else that
// goes wrong to *FetchError.
func (c *Client) LookupAccount(ctx context.Context, rawHandle string) (*Account, error) {
	const op = "lookup account"
	acct := handle.Normalize(rawHandle)

	q := url.Values{}
	q.Set("acct", acct)

	var account Account
	status, err := c.get(ctx, "lookup", "/accounts/lookup?"+q.Encode(), &account)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, acct)
	}
	if err != nil {
		return nil, &FetchError{Op: op, StatusCode: status, Err: err}
	}
	if account.Id == "" {
		return nil, Malformed(op, fmt.Errorf("account %s has no id", acct))
	}

	return &account, nil
}

// FetchStatuses returns the public posts of an account, most recent first as
// upstream sends them, without replies and reblogs.
func (c *Client) FetchStatuses(ctx context.Context, accountId string, limit int) ([]Status, error) {
	const op = "fetch statuses"
	if limit <= 0 {
		limit = DefaultStatusesLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("exclude_replies", "true")
	q.Set("exclude_reblogs", "true")
	path := fmt.Sprintf("/accounts/%s/statuses?%s", url.PathEscape(accountId), q.Encode())

	var statuses []Status
	status, err := c.get(ctx, "statuses", path, &statuses)
	if err != nil {
		return nil, &FetchError{Op: op, StatusCode: status, Err: err}
	}

	return statuses, nil
}

// get performs a GET and decodes a JSON body into out. It returns the HTTP
// status (0 when no response arrived) and an error for any non 2xx answer.
func (c *Client) get(ctx context.Context, endpoint string, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		upstreamRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"error":    err,
		}).Warn("Upstream request failed")
		return 0, err
	}
	defer resp.Body.Close()
	upstreamRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"latency":  time.Since(start),
	}).Debug("Upstream request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body so the message ends up in the error
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("unexpected response: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode body: %v", ErrMalformedData, err)
	}

	return resp.StatusCode, nil
}
