// Package dicomweb implements the slim DICOMweb transport surface the
// mosaic pipeline needs: QIDO instance listing, rendered-preview fetch,
// raw-frame fetch, and series metadata download.
//
// Responses are cached through a pluggable [cache.Cache] and transient
// failures (network errors, 5xx, rate limiting) are retried with
// exponential backoff. HTTP 429 responses honor the Retry-After header
// when present.
package dicomweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"idcmosaic/pkg/cache"
	"idcmosaic/pkg/httputil"
	"idcmosaic/pkg/observability"
)

// DefaultBaseURL is the public IDC DICOMweb proxy endpoint.
const DefaultBaseURL = "https://proxy.imaging.datacommons.cancer.gov/current/" +
	"viewer-only-no-downloads-see-tinyurl-dot-com-slash-3j3d9jyp/dicomWeb"

// DefaultViewerBaseURL is the public IDC viewer used for citation links.
const DefaultViewerBaseURL = "https://viewer.imaging.datacommons.cancer.gov/viewer"

// ErrNotFound is returned when the server answers 404 for a resource.
var ErrNotFound = errors.New("resource not found")

const defaultTimeout = 30 * time.Second

// Config holds the settings for [New]. Zero values select defaults.
type Config struct {
	BaseURL       string        // DICOMweb root; default DefaultBaseURL
	ViewerBaseURL string        // viewer root; default DefaultViewerBaseURL
	Cache         cache.Cache   // response cache; default NullCache
	CacheTTL      time.Duration // TTL for cached responses; 0 = no expiry
	Timeout       time.Duration // per-request timeout; default 30s
	RetryAttempts int           // default 3
	RetryDelay    time.Duration // initial backoff; default 1s
}

// Client talks to a DICOMweb endpoint with caching and retry.
type Client struct {
	http          *http.Client
	cache         cache.Cache
	cacheTTL      time.Duration
	baseURL       string
	viewerBaseURL string
	attempts      int
	delay         time.Duration
}

// New creates a DICOMweb client from cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ViewerBaseURL == "" {
		cfg.ViewerBaseURL = DefaultViewerBaseURL
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewNullCache()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		cache:         cfg.Cache,
		cacheTTL:      cfg.CacheTTL,
		baseURL:       cfg.BaseURL,
		viewerBaseURL: cfg.ViewerBaseURL,
		attempts:      cfg.RetryAttempts,
		delay:         cfg.RetryDelay,
	}
}

// get fetches url with the given Accept header, consulting the cache first.
// Cache writes are best-effort; a failing cache never fails the request.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	key := accept + " " + url
	kind := keyKind(accept)
	if data, ok, _ := c.cache.Get(ctx, key); ok {
		observability.Cache().OnCacheHit(ctx, kind)
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, kind)

	var body []byte
	err := httputil.Retry(ctx, c.attempts, c.delay, func() error {
		var err error
		body, err = c.doRequest(ctx, url, accept)
		return err
	})
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, body, c.cacheTTL)
	observability.Cache().OnCacheSet(ctx, kind, len(body))
	return body, nil
}

// keyKind classifies a request by its Accept header for hook reporting.
func keyKind(accept string) string {
	switch {
	case strings.HasPrefix(accept, "image/"):
		return "rendered"
	case strings.HasPrefix(accept, "multipart/"):
		return "frame"
	case accept == "application/dicom+json":
		return "metadata"
	default:
		return "qido"
	}
}

func (c *Client) doRequest(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)

	observability.HTTP().OnRequest(ctx, http.MethodGet, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, req.URL.Host, req.URL.Path, err)
		return nil, &httputil.RetryableError{Err: err}
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return &httputil.RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("server error: status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
