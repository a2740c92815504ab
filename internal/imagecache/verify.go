// Package imagecache provides the narrow seam the orchestrator calls to
// confirm a downloaded base image matches the digest declared in the
// scenario. Downloading and caching images themselves is out of scope
// (spec.md §1) — this package only checks bytes already on disk.
package imagecache

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrDigestMismatch is returned when the file's computed digest does not
// match the declared one.
var ErrDigestMismatch = errors.New("image digest mismatch")

// ErrUnsupportedAlgorithm is returned for a digest algorithm tag this
// package doesn't implement.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// Verify checks that the file at path hashes to digest, an algorithm-tagged
// string like "sha256:deadbeef...". It is the runtime half of the
// Image.Source invariant already checked structurally at parse time
// (scenario.isTaggedDigest): this is where the bytes are actually read.
func Verify(path, digest string) error {
	algo, want, ok := strings.Cut(digest, ":")
	if !ok {
		return errors.Errorf("malformed digest %q: expected algo:hex", digest)
	}

	var h hash.Hash
	switch algo {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return errors.Wrapf(ErrUnsupportedAlgorithm, "%q", algo)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrapf(err, "hashing %s", path)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return errors.Wrapf(ErrDigestMismatch, "%s: want %s, got %s", path, want, got)
	}
	return nil
}
