package prefs_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/prefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	s, err := prefs.Open(filepath.Join(t.TempDir(), "nested", "prefs.json"), discard())
	require.NoError(t, err)

	assert.Equal(t, prefs.Defaults(), s.Get())
	assert.True(t, s.RefreshNeeded())
	assert.False(t, s.Sector().IsSet())
}

func TestStore_PersistsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := prefs.Open(path, discard())
	require.NoError(t, err)

	require.NoError(t, s.SetRefreshNeeded(false))
	require.NoError(t, s.SetSector(domain.ParseSector("S4")))

	reopened, err := prefs.Open(path, discard())
	require.NoError(t, err)
	assert.Equal(t, prefs.Prefs{RefreshNeeded: false, UserSector: "S4"}, reopened.Get())
	assert.Equal(t, domain.AreaSuburb, reopened.Sector().Type)
}

func TestOpen_CorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := prefs.Open(path, discard())
	require.NoError(t, err)
	assert.Equal(t, prefs.Defaults(), s.Get())
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := prefs.Open(path, discard())
	require.NoError(t, err)
	require.NoError(t, s.SetRefreshNeeded(false))

	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_needed":true,"user_sector":"L9"}`), 0o644))

	p, changed, err := s.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "L9", p.UserSector)

	_, changed, err = s.Reload()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStore_WatchPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := prefs.Open(path, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []prefs.Prefs
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(p prefs.Prefs) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		})
	}()

	want := prefs.Prefs{RefreshNeeded: false, UserSector: "L3"}
	assert.Eventually(t, func() bool {
		// Rewrite until the watcher is up and has seen the change.
		_ = os.WriteFile(path, []byte(`{"refresh_needed":false,"user_sector":"L3"}`), 0o644)
		return s.Get() == want
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, want, seen[len(seen)-1])
}
