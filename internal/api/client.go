package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pders01/consult/internal/config"
	"github.com/pders01/consult/internal/debuglog"
	"github.com/pders01/consult/internal/facet"
)

const (
	maxBodyBytes = 32 << 20
	acceptJSON   = "application/json"
)

// Client talks to the consultation analysis backend.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	meta      *metadataCache
}

// NewClient builds a client from the api section of the configuration.
// A zero rate limit disables client-side throttling.
func NewClient(cfg config.APIConfig) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		meta:      newMetadataCache(cfg.MetadataTTL),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// SetHTTPClient swaps the underlying transport, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
}

// FilteredResponses fetches one page of records.
func (c *Client) FilteredResponses(ctx context.Context, req PageRequest) (*responsesBody, error) {
	var body responsesBody
	path := fmt.Sprintf("/consultations/%s/responses/%s/filtered_responses", url.PathEscape(req.Consultation), url.PathEscape(req.Question))
	if err := c.getJSON(ctx, path, req.Query(), &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// ThemeAggregations fetches per-theme counts for the current filter set.
func (c *Client) ThemeAggregations(ctx context.Context, req PageRequest) (*aggregationsBody, error) {
	var body aggregationsBody
	path := c.questionPath(req, "theme-aggregations")
	if err := c.getJSON(ctx, path, facet.FacetQuery(req.Filters), &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// ThemeInformation fetches theme metadata. Results are cached per question.
func (c *Client) ThemeInformation(ctx context.Context, req PageRequest) (*themeInfoBody, error) {
	key := metadataKey("themes", req)
	if body, ok := c.meta.themes(key); ok {
		return body, nil
	}
	var body themeInfoBody
	if err := c.getJSON(ctx, c.questionPath(req, "theme-information"), "", &body); err != nil {
		return nil, err
	}
	c.meta.set(key, &body)
	return &body, nil
}

// DemographicOptions fetches demographic categories and their values.
// Results are cached per question.
func (c *Client) DemographicOptions(ctx context.Context, req PageRequest) (*demographicsBody, error) {
	key := metadataKey("demographics", req)
	if body, ok := c.meta.demographics(key); ok {
		return body, nil
	}
	var body demographicsBody
	if err := c.getJSON(ctx, c.questionPath(req, "demographic-options"), "", &body); err != nil {
		return nil, err
	}
	c.meta.set(key, &body)
	return &body, nil
}

// Legacy fetches the combined single-endpoint payload.
func (c *Client) Legacy(ctx context.Context, req PageRequest) (*legacyBody, error) {
	var body legacyBody
	path := fmt.Sprintf("/consultations/%s/responses/%s/json", url.PathEscape(req.Consultation), url.PathEscape(req.Question))
	if err := c.getJSON(ctx, path, req.Query(), &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) questionPath(req PageRequest, resource string) string {
	return fmt.Sprintf("/api/consultations/%s/questions/%s/%s/", url.PathEscape(req.Consultation), url.PathEscape(req.Question), resource)
}

func (c *Client) getJSON(ctx context.Context, path, query string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return cancelled(ctx, fmt.Errorf("waiting for rate limiter: %w", err))
		}
	}

	target := c.baseURL + path
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return cancelled(ctx, fmt.Errorf("fetching %s: %w", path, err))
	}
	defer resp.Body.Close()

	debuglog.WithFields(map[string]interface{}{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debugf("GET %s", target)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, URL: target}
	}

	if err := decodeInto(io.LimitReader(resp.Body, maxBodyBytes), out); err != nil {
		return cancelled(ctx, err)
	}
	return nil
}
