// Package pipeline orchestrates a calendar refresh: address check, apartment
// check, sector derivation, calendar scrape and store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/garbagecal/internal/cache"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/couchcryptid/garbagecal/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	streetsKey = "all"
)

// CalendarSource provides street reference data, the apartment list and
// per-sector calendars.
type CalendarSource interface {
	Calendar(ctx context.Context, sector domain.Sector) domain.ScrapeResult
	Streets(ctx context.Context) ([]domain.Street, error)
	Apartments(ctx context.Context) ([]domain.Address, error)
}

// UpdatePublisher announces calendar changes.
type UpdatePublisher interface {
	Publish(ctx context.Context, update domain.CalendarUpdate) error
}

// Refresher keeps the cached calendar of the user's address up to date.
type Refresher struct {
	source      CalendarSource
	user        *store.UserData
	collections *store.CollectionsData
	streets     *cache.Keyed[[]domain.Street]
	publisher   UpdatePublisher
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	interval    time.Duration

	inFlight atomic.Bool
	ready    atomic.Bool
}

// New creates a Refresher. streets caches the street reference list between
// sector derivations.
func New(source CalendarSource, user *store.UserData, collections *store.CollectionsData, streets *cache.Keyed[[]domain.Street],
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Refresher {
	return &Refresher{
		source:      source,
		user:        user,
		collections: collections,
		streets:     streets,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
	}
}

// WithPublisher sets where calendar changes are announced.
func (r *Refresher) WithPublisher(p UpdatePublisher) *Refresher {
	r.publisher = p
	return r
}

// CheckReadiness returns nil once a refresh has completed or found the cache
// fresh, or an error describing why the service is not yet ready.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no calendar has been loaded yet")
	}
	return nil
}

// Refresh brings the cached calendar up to date. Unless force is set, a fresh
// cache is left alone. A call made while another refresh is running returns
// domain.ErrRefreshInFlight immediately.
func (r *Refresher) Refresh(ctx context.Context, force bool) (domain.RefreshReport, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.RefreshRuns.WithLabelValues("in_flight").Inc()
		return domain.RefreshReport{}, domain.ErrRefreshInFlight
	}
	defer r.inFlight.Store(false)

	start := r.clock.Now()
	report, err := r.refresh(ctx, force)
	switch {
	case err != nil:
		r.metrics.RefreshRuns.WithLabelValues("failed").Inc()
	case report.Skipped:
		r.metrics.RefreshRuns.WithLabelValues("skipped").Inc()
		r.ready.Store(true)
	default:
		r.metrics.RefreshRuns.WithLabelValues("success").Inc()
		r.metrics.RefreshDuration.Observe(r.clock.Since(start).Seconds())
		r.ready.Store(true)
	}
	return report, err
}

func (r *Refresher) refresh(ctx context.Context, force bool) (domain.RefreshReport, error) {
	addr, ok := r.user.Address()
	if !ok {
		return domain.RefreshReport{}, domain.ErrNoAddress
	}
	if !force && !r.collections.NeedsRefresh(r.user.IsChanged()) {
		return domain.RefreshReport{
			Sector:      r.user.Sector(),
			Collections: len(r.collections.Collections()),
			Skipped:     true,
		}, nil
	}

	r.collections.BeginLoading()

	apartments, err := r.source.Apartments(ctx)
	if err != nil {
		r.collections.Fail()
		return domain.RefreshReport{}, fmt.Errorf("load apartments: %w", err)
	}
	if domain.IsApartment(apartments, addr) {
		r.collections.Abort()
		return domain.RefreshReport{}, domain.ErrApartment
	}

	sector, err := r.sector(ctx, addr, force)
	if err != nil {
		if errors.Is(err, domain.ErrNoSector) {
			r.collections.Abort()
		} else {
			r.collections.Fail()
		}
		return domain.RefreshReport{}, err
	}

	res := r.source.Calendar(ctx, sector)
	if res.Outcome != domain.Successful {
		r.collections.Fail()
		r.logger.Warn("calendar scrape failed", "sector", sector.Code, "outcome", res.Outcome.String(), "error", res.Err)
		return domain.RefreshReport{Sector: sector}, res.Error()
	}

	prev := r.collections.Collections()
	if err := r.collections.Replace(sector, res.Collections); err != nil {
		r.collections.Fail()
		return domain.RefreshReport{Sector: sector}, err
	}
	if err := r.user.ChangeCommitted(); err != nil {
		r.logger.Warn("commit user change failed", "error", err)
	}

	added, removed := domain.Diff(prev, res.Collections)
	report := domain.RefreshReport{
		Sector:      sector,
		Collections: len(res.Collections),
		Added:       added,
		Removed:     removed,
	}
	r.logger.Info("calendar refreshed", "sector", sector.Code,
		"collections", report.Collections, "added", len(added), "removed", len(removed))

	if len(added)+len(removed) > 0 {
		r.publish(ctx, addr, report)
	}
	return report, nil
}

// sector returns the user's sector, deriving it from street data when it is
// still unset or the refresh is forced.
func (r *Refresher) sector(ctx context.Context, addr domain.Address, force bool) (domain.Sector, error) {
	current := r.user.Sector()
	if current.IsSet() && !force {
		return current, nil
	}

	streets, err := r.loadStreets(ctx)
	if err != nil {
		if current.IsSet() {
			r.logger.Warn("street data unavailable, keeping sector", "sector", current.Code, "error", err)
			return current, nil
		}
		return domain.NoSector, err
	}

	sector, ok := domain.SectorFor(streets, addr)
	if !ok {
		if current.IsSet() {
			r.logger.Warn("address not in street data, keeping sector", "address", addr.Formatted(), "sector", current.Code)
			return current, nil
		}
		return domain.NoSector, fmt.Errorf("%w: %s", domain.ErrNoSector, addr.Formatted())
	}
	if err := r.user.SetSector(sector); err != nil {
		return domain.NoSector, err
	}
	return sector, nil
}

// loadStreets fetches the street list and caches it. When the source is
// unreachable the cached list is used instead.
func (r *Refresher) loadStreets(ctx context.Context) ([]domain.Street, error) {
	streets, err := r.source.Streets(ctx)
	if err == nil {
		if putErr := r.streets.Put(streetsKey, streets); putErr != nil {
			r.logger.Warn("cache street data failed", "error", putErr)
		}
		return streets, nil
	}

	if cached, ok := r.streets.Get(streetsKey); ok {
		r.logger.Warn("using cached street data", "error", err)
		return cached, nil
	}
	return nil, fmt.Errorf("load streets: %w", err)
}

// CachedStreets returns the street list stored by the last successful
// street fetch.
func (r *Refresher) CachedStreets() ([]domain.Street, bool) {
	return r.streets.Get(streetsKey)
}

func (r *Refresher) publish(ctx context.Context, addr domain.Address, report domain.RefreshReport) {
	if r.publisher == nil {
		return
	}
	update := domain.CalendarUpdate{
		ID:          uuid.NewString(),
		Sector:      report.Sector.Code,
		Area:        report.Sector.Type.String(),
		Address:     addr.Formatted(),
		Added:       domain.ToDTOs(report.Added),
		Removed:     domain.ToDTOs(report.Removed),
		Total:       report.Collections,
		GeneratedAt: r.clock.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, update); err != nil {
		r.logger.Warn("publish calendar update failed", "id", update.ID, "error", err)
		r.metrics.UpdatesPublished.WithLabelValues("error").Inc()
		return
	}
	r.metrics.UpdatesPublished.WithLabelValues("success").Inc()
}

// Run refreshes on every interval until the context is cancelled. Transient
// failures are retried with exponential backoff.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", "interval", r.interval)
	r.metrics.RefresherRunning.Set(1)
	defer r.metrics.RefresherRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		wait := r.interval

		_, err := r.Refresh(ctx, false)
		switch {
		case err == nil:
			backoff = initialBackoff
		case ctx.Err() != nil:
			r.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		case errors.Is(err, domain.ErrRefreshInFlight):
		case errors.Is(err, domain.ErrNoAddress), errors.Is(err, domain.ErrApartment), errors.Is(err, domain.ErrNoSector):
			r.logger.Warn("refresh not possible", "error", err)
		default:
			r.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		}

		if !sleepWithContext(ctx, r.clock, wait) {
			r.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
