// Package store holds the user's address and the cached collection calendar
// on top of the local file cache and the preference file.
package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/garbagecal/internal/cache"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/couchcryptid/garbagecal/internal/prefs"
)

const (
	kindUser        = "user"
	kindCollections = "collections"
	keyCurrent      = "current"
)

// UserRecord is the persisted form of the user's address. Changed stays true
// until a refresh for the address has been committed.
type UserRecord struct {
	Address domain.Address
	Changed bool
}

// UserData owns the current address and sector.
type UserData struct {
	cache  *cache.Keyed[UserRecord]
	prefs  *prefs.Store
	logger *slog.Logger

	mu sync.Mutex
}

// NewUserData stores the address under <root>/user and the sector in p.
func NewUserData(root string, p *prefs.Store, logger *slog.Logger, metrics *observability.Metrics) *UserData {
	return &UserData{
		cache:  cache.New[UserRecord](root, kindUser, logger, metrics),
		prefs:  p,
		logger: logger,
	}
}

// Address returns the stored address.
func (u *UserData) Address() (domain.Address, bool) {
	rec, ok := u.cache.Get(keyCurrent)
	if !ok || rec.Address.IsZero() {
		return domain.Address{}, false
	}
	return rec.Address, true
}

// IsSet reports whether an address has been stored.
func (u *UserData) IsSet() bool {
	_, ok := u.Address()
	return ok
}

// SetAddress stores a. A different address resets the sector, which is then
// derived again from street data, and marks the user data as changed.
func (u *UserData) SetAddress(a domain.Address) error {
	if a.IsZero() {
		return domain.ErrNoAddress
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	rec, ok := u.cache.Get(keyCurrent)
	if ok && rec.Address == a {
		return nil
	}

	if err := u.cache.Put(keyCurrent, UserRecord{Address: a, Changed: true}); err != nil {
		return fmt.Errorf("store address: %w", err)
	}
	if err := u.prefs.SetSector(domain.NoSector); err != nil {
		return fmt.Errorf("reset sector: %w", err)
	}
	u.logger.Info("address changed", "address", a.Formatted())
	return nil
}

// Sector returns the stored sector, NoSector when none was derived yet.
func (u *UserData) Sector() domain.Sector { return u.prefs.Sector() }

// SetSector persists s and marks the user data as changed when it differs
// from the stored sector.
func (u *UserData) SetSector(s domain.Sector) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.prefs.Sector() == s {
		return nil
	}
	if err := u.prefs.SetSector(s); err != nil {
		return fmt.Errorf("store sector: %w", err)
	}
	u.logger.Info("sector changed", "sector", s.Code, "area", s.Type.String())
	return u.markChanged(true)
}

// IsChanged reports whether the address or sector changed since the last
// committed refresh.
func (u *UserData) IsChanged() bool {
	rec, ok := u.cache.Get(keyCurrent)
	return ok && rec.Changed
}

// ChangeCommitted clears the changed flag after a successful refresh.
func (u *UserData) ChangeCommitted() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.markChanged(false)
}

// Clear forgets the address and sector.
func (u *UserData) Clear() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.cache.Clear(); err != nil {
		return err
	}
	return u.prefs.SetSector(domain.NoSector)
}

func (u *UserData) markChanged(changed bool) error {
	rec, ok := u.cache.Get(keyCurrent)
	if !ok || rec.Changed == changed {
		return nil
	}
	rec.Changed = changed
	if err := u.cache.Put(keyCurrent, rec); err != nil {
		return fmt.Errorf("store address: %w", err)
	}
	return nil
}
