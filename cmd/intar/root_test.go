package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageCacheDir_FlagWins(t *testing.T) {
	dir, err := imageCacheDir("/explicit/path")
	require.NoError(t, err)
	assert.Equal(t, "/explicit/path", dir)
}

func TestImageCacheDir_EnvFallback(t *testing.T) {
	t.Setenv("INTAR_IMAGE_CACHE", "/from/env")
	dir, err := imageCacheDir("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", dir)
}

func TestImageCacheDir_XDGCacheHome(t *testing.T) {
	t.Setenv("INTAR_IMAGE_CACHE", "")
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	dir, err := imageCacheDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg/cache", "intar", "images"), dir)
}

func TestHostArch_EmptyArchIffError(t *testing.T) {
	// runtime.GOARCH isn't mockable, so the unsupported-arch branch can't be
	// forced here; on whatever host runs this, an error must come with an
	// empty arch and success with a non-empty one.
	arch, err := hostArch()
	if err != nil {
		assert.Empty(t, arch)
	} else {
		assert.NotEmpty(t, arch)
	}
}

func TestResolveRunID_ExplicitWins(t *testing.T) {
	id, err := resolveRunID("explicit-run")
	require.NoError(t, err)
	assert.Equal(t, "explicit-run", id)
}

func TestResolveRunID_FallsBackToLatest(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "")
	runsDir := filepath.Join(home, ".local", "state", "intar", "runs", "run-a")
	require.NoError(t, os.MkdirAll(runsDir, 0o755))

	id, err := resolveRunID("")
	require.NoError(t, err)
	assert.Equal(t, "run-a", id)
}
