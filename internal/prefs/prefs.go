// Package prefs persists the small set of user preferences the refresh logic
// reads: the refresh-needed flag and the sector code.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// Prefs is the on-disk preference document.
type Prefs struct {
	RefreshNeeded bool   `json:"refresh_needed"`
	UserSector    string `json:"user_sector"`
}

// Defaults are used when no preference file exists yet.
func Defaults() Prefs {
	return Prefs{RefreshNeeded: true, UserSector: domain.DefaultSectorCode}
}

// Store keeps preferences in a JSON file and in memory.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	cur Prefs
}

// Open loads the preference file at path. A missing file yields Defaults; a
// corrupt one is logged and replaced by Defaults on the next write.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{path: filepath.Clean(path), logger: logger, cur: Defaults()}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	if p, err := s.read(); err == nil {
		s.cur = p
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("unreadable prefs file, using defaults", "path", s.path, "error", err)
	}
	return s, nil
}

// Get returns a snapshot of the current preferences.
func (s *Store) Get() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// RefreshNeeded reports whether the next refresh must fetch regardless of cache.
func (s *Store) RefreshNeeded() bool { return s.Get().RefreshNeeded }

// SetRefreshNeeded sets and persists the refresh-needed flag.
func (s *Store) SetRefreshNeeded(v bool) error {
	return s.update(func(p *Prefs) { p.RefreshNeeded = v })
}

// Sector returns the persisted sector.
func (s *Store) Sector() domain.Sector { return domain.ParseSector(s.Get().UserSector) }

// SetSector persists the sector code.
func (s *Store) SetSector(sector domain.Sector) error {
	return s.update(func(p *Prefs) { p.UserSector = sector.String() })
}

// Path returns the preference file location.
func (s *Store) Path() string { return s.path }

func (s *Store) update(fn func(*Prefs)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if next == s.cur {
		return nil
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

func (s *Store) read() (Prefs, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Prefs{}, err
	}
	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		return Prefs{}, fmt.Errorf("decode prefs: %w", err)
	}
	return p, nil
}

func (s *Store) write(p Prefs) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// Reload re-reads the file and reports whether the preferences changed.
func (s *Store) Reload() (Prefs, bool, error) {
	p, err := s.read()
	if err != nil {
		return s.Get(), false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := p != s.cur
	s.cur = p
	return p, changed, nil
}

// Watch reloads the preferences whenever the file is changed by another
// process and calls onChange with the new value. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(Prefs)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Writes replace the file by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p, changed, err := s.Reload()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					s.logger.Warn("reload prefs failed", "path", s.path, "error", err)
				}
				continue
			}
			if changed {
				s.logger.Info("prefs changed on disk", "refresh_needed", p.RefreshNeeded, "user_sector", p.UserSector)
				if onChange != nil {
					onChange(p)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("prefs watcher error", "error", err)
		}
	}
}
