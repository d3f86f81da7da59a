// Package client is the single gateway to the partner portal API. Every call
// made by a harvest goes through one Client, which bounds how many calls are
// in flight at once, classifies failures, and turns every failure into
// "no result" for the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/cache"
	"github.com/Sternrassler/portal-sync/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for portal client operations.
var (
	portalRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_requests_total",
		Help: "Total portal requests by endpoint and status",
	}, []string{"endpoint", "status"})

	portalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_request_duration_seconds",
		Help:    "Portal request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 45},
	}, []string{"endpoint"})

	portalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_errors_total",
		Help: "Total portal errors by class",
	}, []string{"class"})

	portalInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_requests_in_flight",
		Help: "Portal requests currently holding a permit",
	})
)

// ErrorClass represents a classification of failed calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 401.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 responses (token likely expired).
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 2xx body that is not valid JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// maxLoggedBody caps how much of an error body is written to the log.
const maxLoggedBody = 2048

// Client executes portal calls under a fixed concurrency ceiling.
type Client struct {
	httpClient *http.Client
	permits    *semaphore.Weighted
	session    *session.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the portal API root, without a trailing slash.
	BaseURL string

	// Token is sent as the Authorization header. A missing "Bearer " prefix
	// is added.
	Token string

	// CustomHeader is sent empty on every request, as the portal front end
	// does. Empty disables it.
	CustomHeader string

	// MaxConcurrency is the permit count K shared by every call.
	MaxConcurrency int

	// CallTimeout bounds one call including reading the body.
	CallTimeout time.Duration

	// FailureBackoff is slept once after a transport or decode failure.
	FailureBackoff time.Duration

	// Session receives the 401 flag. A memory-only tracker is created when nil.
	Session *session.Tracker

	// Cache stores GET detail responses for CacheTTL. Nil disables caching.
	Cache    *cache.Manager
	CacheTTL time.Duration

	// Scope namespaces cache keys and the session, usually the broker name.
	Scope string
}

// DefaultConfig returns the production defaults for the given token.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:        baseURL,
		Token:          token,
		CustomHeader:   "customHeader",
		MaxConcurrency: 20,
		CallTimeout:    45 * time.Second,
		FailureBackoff: 2 * time.Second,
	}
}

// New creates a new portal client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max_concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("call_timeout must be positive")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(strings.ToLower(cfg.Token), "bearer ") {
		cfg.Token = "Bearer " + cfg.Token
	}

	logger := log.With().Str("component", "portal-client").Str("scope", cfg.Scope).Logger()

	tracker := cfg.Session
	if tracker == nil {
		tracker = session.NewTracker(nil, cfg.Scope, logger)
	}

	return &Client{
		httpClient: &http.Client{},
		permits:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		session:    tracker,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Request describes one portal call.
type Request struct {
	// Method is GET or POST.
	Method string

	// Path is relative to BaseURL and may carry a query string.
	Path string

	// Body is the JSON payload for POST calls.
	Body []byte

	// Endpoint labels metrics and logs; use the path template, not the
	// concrete path, to keep label cardinality bounded.
	Endpoint string
}

// Do executes req and returns the JSON response body.
//
// A nil body with a nil error means the portal answered with an empty body.
// Any error means "no result" for this call: the caller skips whatever the
// call was for and carries on. Errors are *PortalError values, except when
// ctx ends before a permit is granted.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Endpoint == "" {
		req.Endpoint = req.Path
	}

	if err := c.permits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire permit: %w", err)
	}
	defer c.permits.Release(1)

	portalInFlight.Inc()
	defer portalInFlight.Dec()

	key, cacheable := c.cacheKey(req)
	if cacheable {
		if entry, err := c.cache.Get(ctx, key); err == nil {
			c.logger.Debug().Str("endpoint", req.Endpoint).Msg("Detail served from cache")
			portalRequestsTotal.WithLabelValues(req.Endpoint, "cached").Inc()
			return json.RawMessage(entry.Data), nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("Cache get error")
		}
	}

	body, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		perr := &PortalError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassDecode,
			Method:     req.Method,
			Path:       req.Path,
			Body:       truncate(body),
			Err:        ErrInvalidJSON,
		}
		portalErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		c.logger.Error().Err(perr).Str("endpoint", req.Endpoint).Msg("Portal response is not valid JSON")
		c.backoff(ctx, ErrorClassDecode)
		return nil, perr
	}

	if cacheable {
		if err := c.cache.Set(ctx, key, cache.NewEntry(body, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("Failed to cache response")
		}
	}

	return json.RawMessage(body), nil
}

// execute runs one HTTP exchange under the per-call timeout and returns the
// raw body of a successful response.
func (c *Client) execute(ctx context.Context, req Request) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		portalRequestDuration.WithLabelValues(req.Endpoint).Observe(time.Since(startTime).Seconds())
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	var reader io.Reader
	if req.Body != nil {
		reader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, c.config.BaseURL+req.Path, reader)
	if err != nil {
		return nil, &PortalError{Class: ErrorClassClient, Method: req.Method, Path: req.Path, Err: err}
	}
	httpReq.Header.Set("Authorization", c.config.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.CustomHeader != "" {
		httpReq.Header.Set(c.config.CustomHeader, "")
	}

	c.logger.Debug().
		Str("endpoint", req.Endpoint).
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("Executing portal request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportFailure(ctx, req, "network_error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(ctx, req, "read_error", err)
	}

	status := strconv.Itoa(resp.StatusCode)
	portalRequestsTotal.WithLabelValues(req.Endpoint, status).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		portalErrorsTotal.WithLabelValues(string(class)).Inc()
		perr := &PortalError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Method:     req.Method,
			Path:       req.Path,
			Body:       truncate(body),
		}

		c.logger.Error().
			Str("endpoint", req.Endpoint).
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("body", perr.Body).
			Msg("Portal request failed")

		if class == ErrorClassAuth {
			if err := c.session.MarkUnauthorized(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record session expiry")
			}
		}
		return nil, perr
	}

	return body, nil
}

// transportFailure logs and classifies a failed exchange, then waits the
// failure backoff once before handing "no result" back.
func (c *Client) transportFailure(ctx context.Context, req Request, status string, err error) error {
	portalRequestsTotal.WithLabelValues(req.Endpoint, status).Inc()
	portalErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()

	c.logger.Error().
		Err(err).
		Str("endpoint", req.Endpoint).
		Str("path", req.Path).
		Msg("Portal request transport failure")

	c.backoff(ctx, ErrorClassNetwork)
	return &PortalError{Class: ErrorClassNetwork, Method: req.Method, Path: req.Path, Err: err}
}

func (c *Client) cacheKey(req Request) (cache.CacheKey, bool) {
	if c.cache == nil || c.config.CacheTTL <= 0 || req.Method != http.MethodGet {
		return cache.CacheKey{}, false
	}
	path, rawQuery, _ := strings.Cut(req.Path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return cache.CacheKey{}, false
	}
	return cache.CacheKey{Endpoint: path, QueryParams: query, Scope: c.config.Scope}, true
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorClassAuth
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}

// Get performs a GET request against path.
func (c *Client) Get(ctx context.Context, endpoint, path string) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Endpoint: endpoint})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint, path string, body []byte) (json.RawMessage, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Endpoint: endpoint})
}

// TokenExpired reports whether the portal rejected the token during this
// client's lifetime.
func (c *Client) TokenExpired() bool {
	return c.session.TokenExpired()
}

// Session returns the session tracker.
func (c *Client) Session() *session.Tracker {
	return c.session
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
