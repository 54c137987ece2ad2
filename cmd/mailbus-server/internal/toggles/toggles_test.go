package toggles

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceFor(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"a@gmail.com", Gmail},
		{"a@GMAIL.com", Gmail},
		{"a@googlemail.gmail.pl", Gmail},
		{"a@wp.pl", WP},
		{"a@wp.com", WP},
		{"a@x.com", Other},
		{"no-at-sign", Other},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, ServiceFor(tt.address))
		})
	}
}

func TestRegistry_Transitions(t *testing.T) {
	r := NewRegistry(nil)

	assert.True(t, r.Enabled(Gmail))
	assert.Equal(t, []string{Gmail, Other, WP}, r.Names())

	require.NoError(t, r.Disable("GMAIL"))
	assert.False(t, r.Enabled(Gmail))

	err := r.Disable(Gmail)
	assert.ErrorIs(t, err, ErrNoTransition)

	require.NoError(t, r.Activate(Gmail))
	assert.ErrorIs(t, r.Activate(Gmail), ErrNoTransition)

	assert.ErrorIs(t, r.Activate("yahoo"), ErrUnknownService)
	assert.False(t, r.Enabled("yahoo"))

	_, err = r.Status("yahoo")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestRegistry_AllIsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	all := r.All()
	all[Gmail] = Disabled

	assert.True(t, r.Enabled(Gmail))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Disable(WP)
			_ = r.Activate(WP)
		}()
		go func() {
			defer wg.Done()
			_ = r.Enabled(WP)
			_ = r.All()
		}()
	}
	wg.Wait()
}

func writeState(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")

	t.Run("applies listed services", func(t *testing.T) {
		r := NewRegistry(nil)
		writeState(t, path, "[services]\nwp = \"disabled\"\n")

		require.NoError(t, r.LoadFile(path))
		assert.False(t, r.Enabled(WP))
		assert.True(t, r.Enabled(Gmail))
	})

	t.Run("unknown service leaves registry untouched", func(t *testing.T) {
		r := NewRegistry(nil)
		writeState(t, path, "[services]\nwp = \"DISABLED\"\nyahoo = \"ACTIVE\"\n")

		assert.ErrorIs(t, r.LoadFile(path), ErrUnknownService)
		assert.True(t, r.Enabled(WP))
	})

	t.Run("invalid status", func(t *testing.T) {
		r := NewRegistry(nil)
		writeState(t, path, "[services]\nwp = \"PAUSED\"\n")

		assert.Error(t, r.LoadFile(path))
	})

	t.Run("missing file", func(t *testing.T) {
		r := NewRegistry(nil)
		assert.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "absent.toml")))
	})
}

func TestRegistry_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")
	writeState(t, path, "[services]\ngmail = \"ACTIVE\"\n")

	r := NewRegistry(nil)
	require.NoError(t, r.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, path) }()

	// let the watcher register before writing
	time.Sleep(50 * time.Millisecond)
	writeState(t, path, "[services]\ngmail = \"DISABLED\"\n")

	assert.Eventually(t, func() bool { return !r.Enabled(Gmail) }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
