package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/garbagecal/internal/cache"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/couchcryptid/garbagecal/internal/prefs"
	"github.com/jonboulle/clockwork"
)

// State is the lifecycle of the cached calendar.
type State int

const (
	StateUnset State = iota
	StateLoading
	StateSet
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateLoading:
		return "loading"
	case StateSet:
		return "set"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the persisted calendar of one sector.
type Snapshot struct {
	Sector      string
	Collections []domain.Collection
	UpdatedAt   time.Time
}

// CollectionsData owns the cached collection list.
type CollectionsData struct {
	cache   *cache.Keyed[Snapshot]
	prefs   *prefs.Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	state State
}

// NewCollectionsData opens the calendar cache under <root>/collections. The
// initial state is Set when a calendar is already cached. metrics may be nil.
func NewCollectionsData(root string, p *prefs.Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *CollectionsData {
	d := &CollectionsData{
		cache:   cache.New[Snapshot](root, kindCollections, logger, metrics),
		prefs:   p,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
	d.state = d.settled()
	if snap, ok := d.snapshot(); ok {
		d.setStored(len(snap.Collections))
	}
	return d
}

// State returns the current lifecycle state.
func (d *CollectionsData) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsSet reports whether a calendar is cached.
func (d *CollectionsData) IsSet() bool {
	_, ok := d.snapshot()
	return ok
}

// NeedsRefresh reports whether the calendar must be fetched: nothing is
// cached, the refresh-needed flag is set, or the user data changed.
func (d *CollectionsData) NeedsRefresh(userChanged bool) bool {
	return !d.IsSet() || d.prefs.RefreshNeeded() || userChanged
}

// BeginLoading moves the data into the Loading state.
func (d *CollectionsData) BeginLoading() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateLoading
}

// Replace stores cols as the calendar of sector, replacing the previous
// list wholesale, and clears the refresh-needed flag.
func (d *CollectionsData) Replace(sector domain.Sector, cols []domain.Collection) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sorted := make([]domain.Collection, len(cols))
	copy(sorted, cols)
	domain.SortCollections(sorted)

	snap := Snapshot{Sector: sector.Code, Collections: sorted, UpdatedAt: d.clock.Now()}
	if err := d.cache.Put(keyCurrent, snap); err != nil {
		d.state = d.settled()
		return fmt.Errorf("store collections: %w", err)
	}
	d.state = StateSet
	d.setStored(len(sorted))

	if err := d.prefs.SetRefreshNeeded(false); err != nil {
		d.logger.Warn("clear refresh flag failed", "error", err)
	}
	return nil
}

// Fail ends a failed load: the cached list is kept and the next refresh is
// forced.
func (d *CollectionsData) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = d.settled()
	if err := d.prefs.SetRefreshNeeded(true); err != nil {
		d.logger.Warn("set refresh flag failed", "error", err)
	}
}

// Abort ends a load that never reached the calendar source.
func (d *CollectionsData) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = d.settled()
}

// Collections returns the whole cached list in date order.
func (d *CollectionsData) Collections() []domain.Collection {
	snap, _ := d.snapshot()
	return snap.Collections
}

// Upcoming returns the collections from the day before now onwards, so a
// pickup that just happened stays visible.
func (d *CollectionsData) Upcoming(now time.Time) []domain.Collection {
	return domain.From(d.Collections(), now.AddDate(0, 0, -1))
}

// Next returns the first collection on or after the day of now.
func (d *CollectionsData) Next(now time.Time) (domain.Collection, bool) {
	cols := domain.From(d.Collections(), now)
	if len(cols) == 0 {
		return domain.Collection{}, false
	}
	return cols[0], true
}

// On returns the collection on the day of t, if any.
func (d *CollectionsData) On(t time.Time) (domain.Collection, bool) {
	next, ok := d.Next(t)
	if !ok || !next.IsOn(t) {
		return domain.Collection{}, false
	}
	return next, true
}

// LastUpdated returns when the cached calendar was stored.
func (d *CollectionsData) LastUpdated() (time.Time, bool) {
	snap, ok := d.snapshot()
	if !ok {
		return time.Time{}, false
	}
	return snap.UpdatedAt, true
}

// Sector returns the sector code the cached calendar belongs to.
func (d *CollectionsData) Sector() string {
	snap, _ := d.snapshot()
	return snap.Sector
}

// Clear drops the cached calendar and forces the next refresh.
func (d *CollectionsData) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cache.Clear(); err != nil {
		return err
	}
	d.state = StateUnset
	d.setStored(0)
	return d.prefs.SetRefreshNeeded(true)
}

func (d *CollectionsData) setStored(n int) {
	if d.metrics == nil {
		return
	}
	d.metrics.CollectionsStored.Set(float64(n))
}

func (d *CollectionsData) snapshot() (Snapshot, bool) {
	return d.cache.Get(keyCurrent)
}

func (d *CollectionsData) settled() State {
	if d.IsSet() {
		return StateSet
	}
	return StateUnset
}
