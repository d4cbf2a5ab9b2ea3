// Package resolver turns free-text addresses into structured addresses inside
// the configured locality.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
)

// Component type tags used to decompose a geocoding result.
const (
	tagStreetNumber = "street_number"
	tagRoute        = "route"
	tagSublocality  = "sublocality"
	tagLocality     = "locality"
	tagPostalCode   = "postal_code"
)

// AddressStore receives the address once it is resolved.
type AddressStore interface {
	SetAddress(addr domain.Address) error
}

// Resolver resolves addresses through a Geocoder and commits single matches
// to an AddressStore.
type Resolver struct {
	geocoder domain.Geocoder
	locality string
	store    AddressStore
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Resolver that only accepts results inside locality.
func New(geocoder domain.Geocoder, locality string, store AddressStore, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		locality: locality,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve geocodes query and classifies the in-locality candidates. A single
// candidate is committed straight away; several are returned for the caller
// to choose from and pass to Commit. Lookup failures are reported as
// ConnectionFailed, never as NotFound.
func (r *Resolver) Resolve(ctx context.Context, query string) domain.Resolution {
	res := r.resolve(ctx, query)
	r.metrics.ResolveOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, query string) domain.Resolution {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Resolution{Outcome: domain.NotFound}
	}

	results, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		r.logger.Warn("geocode failed", "query", query, "error", err)
		return domain.Resolution{Outcome: domain.ConnectionFailed, Err: err}
	}

	candidates := Candidates(FilterLocality(results, r.locality))
	r.logger.Debug("geocode candidates", "query", query, "results", len(results), "in_locality", len(candidates))

	switch len(candidates) {
	case 0:
		return domain.Resolution{Outcome: domain.NotFound}
	case 1:
		res := domain.Resolution{Outcome: domain.Resolved, Candidates: candidates}
		if err := r.Commit(ctx, candidates[0]); err != nil {
			res.Err = err
		}
		return res
	default:
		return domain.Resolution{Outcome: domain.Ambiguous, Candidates: candidates}
	}
}

// Commit stores candidate as the current address.
func (r *Resolver) Commit(_ context.Context, candidate domain.Address) error {
	if candidate.IsZero() {
		return fmt.Errorf("commit address: %w", domain.ErrNoAddress)
	}
	if err := r.store.SetAddress(candidate); err != nil {
		return fmt.Errorf("commit address: %w", err)
	}
	r.logger.Info("address committed", "address", candidate.Formatted())
	return nil
}

// FilterLocality keeps the results that carry a locality component whose
// name equals locality exactly.
func FilterLocality(results []domain.GeocodeResult, locality string) []domain.GeocodeResult {
	var out []domain.GeocodeResult
	for _, res := range results {
		for _, c := range res.Components {
			if c.LongName != locality {
				continue
			}
			if c.PrimaryType() == tagLocality || c.HasType(tagSublocality) {
				out = append(out, res)
				break
			}
		}
	}
	return out
}

// Decompose maps a geocoding result onto an Address. Missing or unparsable
// components leave their field unset. The city is the sublocality when there
// is one and the locality otherwise.
func Decompose(res domain.GeocodeResult) domain.Address {
	var addr domain.Address
	var locality string
	for _, c := range res.Components {
		switch {
		case c.HasType(tagStreetNumber):
			addr.Number = atoi(c.LongName)
		case c.HasType(tagRoute):
			addr.Street = c.LongName
		case c.HasType(tagSublocality):
			addr.City = c.LongName
		case c.HasType(tagLocality):
			locality = c.LongName
		case c.HasType(tagPostalCode):
			addr.Zip = atoi(c.LongName)
		}
	}
	if addr.City == "" {
		addr.City = locality
	}
	return addr
}

// Candidates decomposes results, dropping those without a street and
// duplicates of an earlier candidate.
func Candidates(results []domain.GeocodeResult) []domain.Address {
	var out []domain.Address
	for _, res := range results {
		addr := Decompose(res)
		if addr.IsZero() || containsAddress(out, addr) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func containsAddress(list []domain.Address, a domain.Address) bool {
	for _, b := range list {
		if b.Equal(a) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
