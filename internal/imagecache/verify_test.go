package imagecache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256sumHelloWorld is the sha256 digest of the literal bytes "hello world".
const sha256sumHelloWorld = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestVerify_CorrectDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	require.NoError(t, Verify(path, "sha256:"+sha256sumHelloWorld))
}

func TestVerify_CaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	require.NoError(t, Verify(path, "sha256:"+strings.ToUpper(sha256sumHelloWorld)))
}

func TestVerify_Mismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	err := Verify(path, "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestVerify_UnsupportedAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := Verify(path, "md5:deadbeef")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerify_MalformedDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := Verify(path, "not-a-digest")
	assert.Error(t, err)
}
