package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunList_MixedEntriesNoError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte(""), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.hcl"), 0o755))

	*listDir = dir
	err := runList()
	require.NoError(t, err)
}

func TestRunList_EmptyDirNoError(t *testing.T) {
	dir := t.TempDir()
	*listDir = dir
	require.NoError(t, runList())
}
