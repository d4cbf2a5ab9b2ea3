// Package cache stores gob-encoded values in one file per key.
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/garbagecal/internal/observability"
)

const tmpPrefix = ".tmp-"

var errEmptyKey = errors.New("empty key")

// Keyed is a best-effort on-disk cache of T values for one cache kind. Read
// failures degrade to misses; write failures are logged and returned but
// never roll back other state. There is no locking: concurrent writers to the
// same key race and the last rename wins.
type Keyed[T any] struct {
	dir     string
	kind    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New returns a cache rooted at <root>/<kind>. The directory is created here
// and again on every write, so a failure now is logged, not fatal. metrics may
// be nil.
func New[T any](root, kind string, logger *slog.Logger, metrics *observability.Metrics) *Keyed[T] {
	c := &Keyed[T]{
		dir:     filepath.Join(root, kind),
		kind:    kind,
		logger:  logger.With("cache", kind),
		metrics: metrics,
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("create cache dir failed", "dir", c.dir, "error", err)
	}
	return c
}

// Dir returns the directory holding this kind's entries.
func (c *Keyed[T]) Dir() string { return c.dir }

// Get returns the value stored under key. Missing, empty and corrupt entries
// all report false.
func (c *Keyed[T]) Get(key string) (T, bool) {
	var zero T

	data, err := os.ReadFile(c.path(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.lookup("miss")
		return zero, false
	case err != nil:
		c.logger.Warn("read cache entry failed", "key", key, "error", err)
		c.lookup("miss")
		return zero, false
	case len(data) == 0:
		c.lookup("miss")
		return zero, false
	}

	v, err := decode[T](data)
	if err != nil {
		c.logger.Warn("corrupt cache entry", "key", key, "error", err)
		c.lookup("corrupt")
		return zero, false
	}
	c.lookup("hit")
	return v, true
}

// Put stores v under key, replacing any previous value.
func (c *Keyed[T]) Put(key string, v T) error {
	if key == "" {
		return c.writeFailed("put", key, errEmptyKey)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return c.writeFailed("encode", key, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return c.writeFailed("create dir", key, err)
	}

	tmp, err := os.CreateTemp(c.dir, tmpPrefix+"*")
	if err != nil {
		return c.writeFailed("create temp file", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return c.writeFailed("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		return c.writeFailed("close", key, err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return c.writeFailed("rename", key, err)
	}
	return nil
}

// Exists reports whether an entry file exists for key, even an empty one.
func (c *Keyed[T]) Exists(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// IsSet reports whether key holds a non-empty entry.
func (c *Keyed[T]) IsSet(key string) bool {
	info, err := os.Stat(c.path(key))
	return err == nil && info.Size() > 0
}

// LastModified returns when key was last written. The boolean is false when
// the entry does not exist.
func (c *Keyed[T]) LastModified(key string) (time.Time, bool) {
	info, err := os.Stat(c.path(key))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Keys lists the stored keys in sorted order.
func (c *Keyed[T]) Keys() []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("list cache dir failed", "dir", c.dir, "error", err)
		}
		return nil
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		key, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GetAll returns every readable value ordered by key. Unreadable or corrupt
// entries are skipped.
func (c *Keyed[T]) GetAll() []T {
	keys := c.Keys()
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Invalidate removes key. Removing a missing key is not an error.
func (c *Keyed[T]) Invalidate(key string) error {
	err := os.Remove(c.path(key))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return c.writeFailed("remove", key, err)
}

// Clear removes every entry of this kind.
func (c *Keyed[T]) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return c.writeFailed("clear", "*", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("recreate cache dir failed", "dir", c.dir, "error", err)
	}
	return nil
}

func (c *Keyed[T]) path(key string) string {
	return filepath.Join(c.dir, fileName(key))
}

func (c *Keyed[T]) lookup(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(c.kind, result).Inc()
	}
}

func (c *Keyed[T]) writeFailed(op, key string, err error) error {
	c.logger.Error("cache write failed", "op", op, "key", key, "error", err)
	if c.metrics != nil {
		c.metrics.CacheWriteErrors.WithLabelValues(c.kind).Inc()
	}
	return fmt.Errorf("cache %s %s %q: %w", c.kind, op, key, err)
}

// fileName escapes key into a single path element. Leading dots are escaped
// so keys never collide with "." or ".." or with temp files.
func fileName(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}
