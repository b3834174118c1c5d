// Package contenthash computes the content_hash the Catalog uses to detect
// on-disk changes (SPEC_FULL.md §4.6 phase 4's mtime-fast-path-then-hash
// check). Grounded on the teacher's hashFileDisk (files.go), with
// SHA-256/hex replacing QuickXorHash/base64 since this domain has no
// remote-side hash contract to match — the Catalog is the only reader.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// File computes the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("contenthash: open %s: %w", path, err)
	}
	defer f.Close()

	return Reader(f)
}

// Reader computes the hex-encoded SHA-256 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("contenthash: hash: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
