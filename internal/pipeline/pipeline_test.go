package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/garbagecal/internal/cache"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/couchcryptid/garbagecal/internal/pipeline"
	"github.com/couchcryptid/garbagecal/internal/prefs"
	"github.com/couchcryptid/garbagecal/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	mu         sync.Mutex
	streets    []domain.Street
	streetsErr error
	apartments []domain.Address
	result     domain.ScrapeResult

	// When set, Calendar signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	calendarCalls atomic.Int64
	streetCalls   atomic.Int64
}

func (m *mockSource) Calendar(_ context.Context, sector domain.Sector) domain.ScrapeResult {
	m.calendarCalls.Add(1)
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.result
	res.Sector = sector
	return res
}

func (m *mockSource) Streets(context.Context) ([]domain.Street, error) {
	m.streetCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streets, m.streetsErr
}

func (m *mockSource) Apartments(context.Context) ([]domain.Address, error) {
	return m.apartments, nil
}

func (m *mockSource) setResult(res domain.ScrapeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
}

type mockPublisher struct {
	mu      sync.Mutex
	updates []domain.CalendarUpdate
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, u domain.CalendarUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return m.err
}

// --- fixtures ---

var (
	korenmarkt = domain.Address{Street: "Korenmarkt", Number: 16, Zip: 9000, City: "Gent"}
	start      = time.Date(2024, 11, 13, 7, 0, 0, 0, time.UTC)
)

var gentStreets = []domain.Street{
	{Name: "Korenmarkt", Zip: 9000, City: "Gent", SectorCode: "L1"},
	{Name: "Brusselsesteenweg", Zip: 9050, City: "Gentbrugge", SectorCode: "S4"},
}

type harness struct {
	source    *mockSource
	publisher *mockPublisher
	prefs     *prefs.Store
	user      *store.UserData
	cols      *store.CollectionsData
	clock     *clockwork.FakeClock
	metrics   *observability.Metrics
	refresher *pipeline.Refresher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := prefs.Open(filepath.Join(root, "prefs.json"), logger)
	require.NoError(t, err)

	h := &harness{
		source: &mockSource{
			streets: gentStreets,
			result:  domain.ScrapeResult{Outcome: domain.Successful, Collections: twoPickups(t)},
		},
		publisher: &mockPublisher{},
		prefs:     p,
		clock:     clockwork.NewFakeClockAt(start),
		metrics:   observability.NewMetricsForTesting(),
	}
	h.user = store.NewUserData(root, p, logger, h.metrics)
	h.cols = store.NewCollectionsData(root, p, h.clock, logger, h.metrics)
	streets := cache.New[[]domain.Street](root, "streets", logger, h.metrics)
	h.refresher = pipeline.New(h.source, h.user, h.cols, streets, h.clock, logger, h.metrics, time.Hour).
		WithPublisher(h.publisher)
	return h
}

func pickup(t *testing.T, d int, types ...domain.Type) domain.Collection {
	t.Helper()
	c, err := domain.NewCollection(time.Date(2024, 11, d, 0, 0, 0, 0, time.UTC), types...)
	require.NoError(t, err)
	return c
}

func twoPickups(t *testing.T) []domain.Collection {
	return []domain.Collection{
		pickup(t, 14, domain.TypeRest, domain.TypeGFT),
		pickup(t, 21, domain.TypePMD),
	}
}

// --- tests ---

func TestRefresh_NoAddress(t *testing.T) {
	h := newHarness(t)

	_, err := h.refresher.Refresh(context.Background(), false)
	require.ErrorIs(t, err, domain.ErrNoAddress)
	assert.Zero(t, h.source.calendarCalls.Load())
	assert.Error(t, h.refresher.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshRuns.WithLabelValues("failed")))
}

func TestRefresh_HappyPath(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))

	report, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, domain.ParseSector("L1"), report.Sector)
	assert.Equal(t, 2, report.Collections)
	assert.Len(t, report.Added, 2)
	assert.Empty(t, report.Removed)
	assert.False(t, report.Skipped)

	assert.Equal(t, domain.ParseSector("L1"), h.user.Sector())
	assert.False(t, h.user.IsChanged())
	assert.False(t, h.prefs.RefreshNeeded())
	assert.Equal(t, store.StateSet, h.cols.State())
	if diff := cmp.Diff(twoPickups(t), h.cols.Collections()); diff != "" {
		t.Errorf("stored collections mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, h.refresher.CheckReadiness(context.Background()))

	require.Len(t, h.publisher.updates, 1)
	u := h.publisher.updates[0]
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "L1", u.Sector)
	assert.Equal(t, domain.AreaCity.String(), u.Area)
	assert.Equal(t, korenmarkt.Formatted(), u.Address)
	assert.Equal(t, 2, u.Total)
	assert.Equal(t, start, u.GeneratedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.UpdatesPublished.WithLabelValues("success")))
}

func TestRefresh_SkipsWhenFresh(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)

	report, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 2, report.Collections)
	assert.Equal(t, int64(1), h.source.calendarCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshRuns.WithLabelValues("skipped")))
}

func TestRefresh_ForceRederivesSectorAndPublishesOnlyChanges(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)

	// Same calendar: nothing to announce.
	report, err := h.refresher.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, report.Added)
	assert.Empty(t, report.Removed)
	assert.Equal(t, int64(2), h.source.streetCalls.Load())
	assert.Len(t, h.publisher.updates, 1)

	h.source.setResult(domain.ScrapeResult{Outcome: domain.Successful, Collections: []domain.Collection{
		pickup(t, 14, domain.TypeRest, domain.TypeGFT),
		pickup(t, 28, domain.TypeGlas),
	}})
	report, err = h.refresher.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, report.Added, 1)
	require.Len(t, report.Removed, 1)
	assert.Equal(t, 28, report.Added[0].Date.Day())
	assert.Equal(t, 21, report.Removed[0].Date.Day())
	require.Len(t, h.publisher.updates, 2)
}

func TestRefresh_Apartment(t *testing.T) {
	h := newHarness(t)
	h.source.apartments = []domain.Address{korenmarkt}
	require.NoError(t, h.user.SetAddress(korenmarkt))

	_, err := h.refresher.Refresh(context.Background(), false)
	require.ErrorIs(t, err, domain.ErrApartment)
	assert.Zero(t, h.source.calendarCalls.Load())
	assert.Equal(t, store.StateUnset, h.cols.State())
}

func TestRefresh_AddressOutsideStreetData(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(domain.Address{Street: "Nergensstraat", Number: 1, Zip: 9000, City: "Gent"}))

	_, err := h.refresher.Refresh(context.Background(), false)
	require.ErrorIs(t, err, domain.ErrNoSector)
	assert.Zero(t, h.source.calendarCalls.Load())
}

func TestRefresh_FailureKeepsCacheAndChangedFlag(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)

	// A new address in the same sector, then the calendar source goes down.
	moved := korenmarkt
	moved.Number = 20
	require.NoError(t, h.user.SetAddress(moved))
	h.source.setResult(domain.ScrapeResult{Outcome: domain.ConnectionFail, Err: errors.New("connection reset")})

	_, err = h.refresher.Refresh(context.Background(), false)
	var scrapeErr *domain.ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	assert.Equal(t, domain.ConnectionFail, scrapeErr.Outcome)

	assert.Len(t, h.cols.Collections(), 2)
	assert.Equal(t, store.StateSet, h.cols.State())
	assert.True(t, h.user.IsChanged())
	assert.True(t, h.prefs.RefreshNeeded())
	assert.Len(t, h.publisher.updates, 1)
}

func TestRefresh_OfflineAfterLoadKeepsCalendarUnchanged(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.False(t, h.user.IsChanged())
	before := h.cols.Collections()

	h.source.setResult(domain.ScrapeResult{Outcome: domain.NoInternetConnection, Err: errors.New("dial tcp: lookup calendar: no such host")})

	_, err = h.refresher.Refresh(context.Background(), true)
	var scrapeErr *domain.ScrapeError
	require.ErrorAs(t, err, &scrapeErr)
	assert.Equal(t, domain.NoInternetConnection, scrapeErr.Outcome)

	if diff := cmp.Diff(before, h.cols.Collections()); diff != "" {
		t.Errorf("calendar changed after failed refresh (-before +after):\n%s", diff)
	}
	assert.False(t, h.user.IsChanged())
	assert.Equal(t, store.StateSet, h.cols.State())
	assert.True(t, h.prefs.RefreshNeeded())
	assert.Len(t, h.publisher.updates, 1)
}

func TestRefresh_UsesCachedStreetsWhenSourceDown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	_, ok := h.refresher.CachedStreets()
	assert.False(t, ok)
	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)
	cached, ok := h.refresher.CachedStreets()
	require.True(t, ok)
	assert.NotEmpty(t, cached)

	h.source.mu.Lock()
	h.source.streetsErr = &domain.ScrapeError{Outcome: domain.NoInternetConnection}
	h.source.mu.Unlock()

	// A new address resets the sector, so street data is needed again.
	require.NoError(t, h.user.SetAddress(domain.Address{Street: "Korenmarkt", Number: 2, Zip: 9000, City: "Gent"}))
	report, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "L1", report.Sector.Code)
}

func TestRefresh_InFlightCallIsDropped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	h.source.entered = make(chan struct{})
	h.source.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.refresher.Refresh(context.Background(), false)
		done <- err
	}()
	<-h.source.entered

	_, err := h.refresher.Refresh(context.Background(), true)
	require.ErrorIs(t, err, domain.ErrRefreshInFlight)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshRuns.WithLabelValues("in_flight")))

	close(h.source.release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), h.source.calendarCalls.Load())
}

func TestRefresh_PublishErrorDoesNotFailRefresh(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	require.NoError(t, h.user.SetAddress(korenmarkt))

	_, err := h.refresher.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.UpdatesPublished.WithLabelValues("error")))
}

func TestRun_RefreshesEveryInterval(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.refresher.Run(ctx) }()

	// First refresh runs immediately, then the loop waits for the interval.
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int64(1), h.source.calendarCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefresherRunning))

	// The cache is fresh, so the next pass is skipped until forced by the flag.
	require.NoError(t, h.prefs.SetRefreshNeeded(true))
	h.clock.Advance(time.Hour)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int64(2), h.source.calendarCalls.Load())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.RefresherRunning))
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.user.SetAddress(korenmarkt))
	h.source.setResult(domain.ScrapeResult{Outcome: domain.ConnectionFail, Err: errors.New("timeout")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.refresher.Run(ctx) }()

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int64(1), h.source.calendarCalls.Load())

	// Retried after the initial backoff, well before the interval.
	h.clock.Advance(200 * time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int64(2), h.source.calendarCalls.Load())

	cancel()
	require.NoError(t, <-done)
}
