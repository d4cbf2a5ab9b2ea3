// Package calendar fetches street reference data, the apartment list and
// per-sector collection calendars from the calendar source.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
)

// Endpoint labels, also used as metric label values.
const (
	endpointCalendar   = "calendar"
	endpointStreets    = "streets"
	endpointApartments = "apartments"
)

// Scraper talks to the calendar source over HTTP.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	holidays   *domain.HolidayCalendar
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewScraper creates a Scraper. Connection attempts are bounded by
// connectTimeout; reads are bounded only by the request context. holidays
// may be nil.
func NewScraper(baseURL string, connectTimeout time.Duration, holidays *domain.HolidayCalendar, logger *slog.Logger, metrics *observability.Metrics) *Scraper {
	return &Scraper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(connectTimeout),
		holidays:   holidays,
		logger:     logger,
		metrics:    metrics,
	}
}

// newHTTPClient bounds dial and TLS handshake by connectTimeout and sets no
// overall deadline.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}

// Calendar fetches and parses the calendar of sector.
func (s *Scraper) Calendar(ctx context.Context, sector domain.Sector) domain.ScrapeResult {
	res := domain.ScrapeResult{Sector: sector}
	if !sector.IsSet() {
		res.Outcome = domain.UnknownError
		res.Err = domain.ErrNoSector
		s.observe(endpointCalendar, res.Outcome)
		return res
	}

	var cols []domain.Collection
	outcome, err := s.get(ctx, endpointCalendar, "/calendar/"+url.PathEscape(sector.Code), func(body io.Reader) error {
		doc, parsed, stats, err := Parse(body)
		if err != nil {
			return err
		}
		if doc.Sector != "" && !strings.EqualFold(doc.Sector, sector.Code) {
			s.logger.Warn("calendar sector mismatch", "requested", sector.Code, "received", doc.Sector)
		}
		if stats.BadDates+stats.UnknownTypes+stats.EmptyRows > 0 {
			s.logger.Debug("calendar rows skipped", "sector", sector.Code,
				"rows", stats.Rows, "bad_dates", stats.BadDates,
				"unknown_types", stats.UnknownTypes, "empty_rows", stats.EmptyRows)
		}
		cols = parsed
		return nil
	})

	res.Outcome, res.Err = outcome, err
	if outcome == domain.Successful && len(cols) == 0 {
		res.Outcome = domain.EmptyResponse
	}
	if res.Outcome == domain.Successful {
		s.holidays.Annotate(cols)
		res.Collections = cols
	}
	s.observe(endpointCalendar, res.Outcome)
	return res
}

// Streets fetches the street reference list.
func (s *Scraper) Streets(ctx context.Context) ([]domain.Street, error) {
	var streets []domain.Street
	outcome, err := s.get(ctx, endpointStreets, "/streets", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&streets)
	})
	s.observe(endpointStreets, outcome)
	if outcome != domain.Successful {
		return nil, &domain.ScrapeError{Outcome: outcome, Err: err}
	}
	return streets, nil
}

// Apartments fetches the list of addresses that are apartment blocks.
func (s *Scraper) Apartments(ctx context.Context) ([]domain.Address, error) {
	var apartments []domain.Address
	outcome, err := s.get(ctx, endpointApartments, "/apartments", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&apartments)
	})
	s.observe(endpointApartments, outcome)
	if outcome != domain.Successful {
		return nil, &domain.ScrapeError{Outcome: outcome, Err: err}
	}
	return apartments, nil
}

// get performs a GET against the calendar source and hands the body to
// decode. Transport failures and HTTP errors are classified into a
// ScrapeOutcome; a decode error is UnknownError.
func (s *Scraper) get(ctx context.Context, endpoint, path string, decode func(io.Reader) error) (domain.ScrapeOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return domain.UnknownError, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.ScrapeDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		return Classify(err), fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.EmptyResponse, fmt.Errorf("%s: status %d", endpoint, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.ConnectionFail, fmt.Errorf("%s: status %d", endpoint, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.UnknownError, fmt.Errorf("%s: status %d", endpoint, resp.StatusCode)
	}

	err = decode(resp.Body)
	s.metrics.ScrapeDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTransport(err) {
			return Classify(err), fmt.Errorf("%s read: %w", endpoint, err)
		}
		return domain.UnknownError, fmt.Errorf("%s decode: %w", endpoint, err)
	}
	return domain.Successful, nil
}

func (s *Scraper) observe(endpoint string, outcome domain.ScrapeOutcome) {
	s.metrics.ScrapeRequests.WithLabelValues(endpoint, outcome.String()).Inc()
}

// Classify maps a transport error onto a ScrapeOutcome. Name resolution and
// refused or unreachable connections mean there is no usable network;
// timeouts and everything else are connection failures.
func Classify(err error) domain.ScrapeOutcome {
	if err == nil {
		return domain.Successful
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ConnectionFail
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ConnectionFail
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NoInternetConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.NoInternetConnection
	}
	return domain.ConnectionFail
}

func isTransport(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
