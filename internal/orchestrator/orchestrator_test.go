package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

func writeImageFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func sha256Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func TestBaseImagePath_UsesURLExtension(t *testing.T) {
	o := &Orchestrator{imageCacheDir: "/cache"}
	img := scenario.Image{ID: "ubuntu"}
	src := scenario.Source{Arch: scenario.ArchAMD64, URL: "https://example.test/ubuntu.img"}
	assert.Equal(t, "/cache/ubuntu-amd64.img", o.baseImagePath(img, src))
}

func TestBaseImagePath_DefaultsToQcow2(t *testing.T) {
	o := &Orchestrator{imageCacheDir: "/cache"}
	img := scenario.Image{ID: "ubuntu"}
	src := scenario.Source{Arch: scenario.ArchARM64, URL: "https://example.test/download?id=1"}
	assert.Equal(t, "/cache/ubuntu-arm64.qcow2", o.baseImagePath(img, src))
}

func newTestOrchestrator(t *testing.T, s *scenario.Scenario, cacheDir string) *Orchestrator {
	t.Helper()
	run := &scenario.Run{ID: "run-test", Scenario: s, Dir: t.TempDir()}
	return New(run, scenario.ArchAMD64, cacheDir, zap.NewNop())
}

func TestPrepare_OK(t *testing.T) {
	cacheDir := t.TempDir()
	content := []byte("fake qcow2 bytes")
	writeImageFile(t, cacheDir, "ubuntu-amd64.qcow2", content)

	s := &scenario.Scenario{
		Images: map[string]scenario.Image{
			"ubuntu": {ID: "ubuntu", Sources: []scenario.Source{
				{Arch: scenario.ArchAMD64, URL: "https://example.test/ubuntu.qcow2", Hash: sha256Digest(content)},
			}},
		},
	}
	o := newTestOrchestrator(t, s, cacheDir)
	assert.NoError(t, o.prepare(nil))
}

func TestPrepare_MissingFile(t *testing.T) {
	cacheDir := t.TempDir()
	s := &scenario.Scenario{
		Images: map[string]scenario.Image{
			"ubuntu": {ID: "ubuntu", Sources: []scenario.Source{
				{Arch: scenario.ArchAMD64, URL: "https://example.test/ubuntu.qcow2", Hash: "sha256:deadbeef"},
			}},
		},
	}
	o := newTestOrchestrator(t, s, cacheDir)
	err := o.prepare(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageUnavailable)
}

func TestPrepare_DigestMismatch(t *testing.T) {
	cacheDir := t.TempDir()
	content := []byte("fake qcow2 bytes")
	writeImageFile(t, cacheDir, "ubuntu-amd64.qcow2", content)

	s := &scenario.Scenario{
		Images: map[string]scenario.Image{
			"ubuntu": {ID: "ubuntu", Sources: []scenario.Source{
				{Arch: scenario.ArchAMD64, URL: "https://example.test/ubuntu.qcow2", Hash: sha256Digest([]byte("other bytes"))},
			}},
		},
	}
	o := newTestOrchestrator(t, s, cacheDir)
	err := o.prepare(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageUnavailable)
}

func TestPrepare_NoSourceForHostArch(t *testing.T) {
	cacheDir := t.TempDir()
	s := &scenario.Scenario{
		Images: map[string]scenario.Image{
			"ubuntu": {ID: "ubuntu", Sources: []scenario.Source{
				{Arch: scenario.ArchARM64, URL: "https://example.test/ubuntu.qcow2", Hash: "sha256:deadbeef"},
			}},
		},
	}
	o := newTestOrchestrator(t, s, cacheDir)
	err := o.prepare(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageUnavailable)
}
