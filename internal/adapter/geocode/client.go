// Package geocode implements domain.Geocoder against a Google-style geocoding
// JSON endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
)

// Provider status values.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusInvalidRequest = "INVALID_REQUEST"
)

// APIError is a non-OK provider status such as OVER_QUERY_LIMIT or
// REQUEST_DENIED.
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "geocoding API status " + e.Status
	}
	return fmt.Sprintf("geocoding API status %s: %s", e.Status, e.Message)
}

// Client implements domain.Geocoder. Only connection setup is bounded by a
// timeout; the response read is governed by the request context.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a geocoding client. apiKey may be empty.
func NewClient(endpoint, apiKey string, connectTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: NewHTTPClient(connectTimeout),
		logger:     logger,
		metrics:    metrics,
	}
}

// NewHTTPClient returns an http.Client whose dial and TLS handshake are
// bounded by connectTimeout and that sets no overall deadline.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}

// Geocode looks up every candidate for address. ZERO_RESULTS and
// INVALID_REQUEST yield no candidates; other non-OK statuses are *APIError.
func (c *Client) Geocode(ctx context.Context, address string) ([]domain.GeocodeResult, error) {
	params := url.Values{
		"address": {address},
		"sensor":  {"false"},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geocoding API error: status %d: %s", resp.StatusCode, body)
	}

	var gr response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch gr.Status {
	case StatusOK:
	case StatusZeroResults, StatusInvalidRequest:
		c.logger.Debug("geocode returned no results", "status", gr.Status)
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return nil, nil
	default:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, &APIError{Status: gr.Status, Message: gr.ErrorMessage}
	}

	results := make([]domain.GeocodeResult, 0, len(gr.Results))
	for _, r := range gr.Results {
		results = append(results, r.toDomain())
	}
	if len(results) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	} else {
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return results, nil
}

// Geocoding API response types.

type response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []result `json:"results"`
}

type result struct {
	FormattedAddress  string      `json:"formatted_address"`
	AddressComponents []component `json:"address_components"`
}

type component struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name,omitempty"`
	Types     []string `json:"types"`
}

func (r result) toDomain() domain.GeocodeResult {
	out := domain.GeocodeResult{
		FormattedAddress: r.FormattedAddress,
		Components:       make([]domain.AddressComponent, 0, len(r.AddressComponents)),
	}
	for _, c := range r.AddressComponents {
		out.Components = append(out.Components, domain.AddressComponent{
			LongName: c.LongName,
			Types:    c.Types,
		})
	}
	return out
}
