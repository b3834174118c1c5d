package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/pkg/contenthash"
)

// ScannerStore is the narrow Catalog surface the filesystem walk needs.
type ScannerStore interface {
	GetRecord(ctx context.Context, filePath string) (*catalog.FileRecord, error)
	EnsureTracked(ctx context.Context, filePath, contentHash string, size int64, mtime float64, enrichmentVersion string, now int64) error
	ListTrackedPaths(ctx context.Context) ([]string, error)
	MarkMissing(ctx context.Context, paths []string, now int64) error
	ClearMissing(ctx context.Context, filePath string, now int64) error
}

// Scanner walks a library root and classifies every on-disk path against
// the Catalog (spec.md §4.6 phase 4). It holds no state between calls.
type Scanner struct {
	store  ScannerStore
	logger *slog.Logger

	maxFileSize  int64 // 0 means unlimited
	skipDotfiles bool
	skipPatterns []string
}

// ScannerOption configures filtering behavior the default zero-value
// Scanner doesn't apply — callers that don't need filtering (most tests)
// can keep calling NewScanner with no options.
type ScannerOption func(*Scanner)

// WithMaxFileSize excludes files larger than n bytes from tracking
// (library.max_file_size). n <= 0 disables the limit.
func WithMaxFileSize(n int64) ScannerOption {
	return func(s *Scanner) { s.maxFileSize = n }
}

// WithSkipDotfiles excludes any path with a dot-prefixed path segment
// (library.skip_dotfiles) — e.g. ".git/config" or a top-level ".env".
func WithSkipDotfiles(skip bool) ScannerOption {
	return func(s *Scanner) { s.skipDotfiles = skip }
}

// WithSkipPatterns excludes files whose base name matches any of patterns,
// evaluated with filepath.Match (library.skip_patterns).
func WithSkipPatterns(patterns []string) ScannerOption {
	return func(s *Scanner) { s.skipPatterns = patterns }
}

func NewScanner(store ScannerStore, logger *slog.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scanner{store: store, logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scan walks root, upserting new and modified files into the Catalog and
// marking tracked paths no longer found on disk as missing. enrichmentVersion
// is stamped on every EnsureTracked call so a fresh scan under a bumped
// version naturally re-enters LoadPending's idempotency gate. Paths excluded
// by the configured filters are treated exactly like paths absent from
// disk — they neither get tracked nor keep an existing record out of the
// missing set, so lowering max_file_size or adding a skip pattern drains
// the matching records through the same missing/prune path as a deletion.
func (s *Scanner) Scan(ctx context.Context, root, enrichmentVersion string, now int64) (ChangeSet, error) {
	var cs ChangeSet

	visited := make(map[string]bool)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("reconciler: walk %q: %w", path, err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("reconciler: relativize %q: %w", path, err)
		}

		if s.skipDotfiles && isDotfile(relPath) {
			if d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if matchesAny(s.skipPatterns, filepath.Base(relPath)) {
			if d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		return s.classifyFile(ctx, path, relPath, enrichmentVersion, now, visited, &cs)
	})
	if walkErr != nil {
		return cs, walkErr
	}

	missing, err := s.detectMissing(ctx, visited, now)
	if err != nil {
		return cs, err
	}

	cs.Missing = missing

	return cs, nil
}

func isDotfile(relPath string) bool {
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}

	return false
}

func matchesAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}

	return false
}

func (s *Scanner) classifyFile(ctx context.Context, fullPath, relPath, enrichmentVersion string, now int64, visited map[string]bool, cs *ChangeSet) error {
	info, err := os.Stat(fullPath)
	if err != nil {
		s.logger.Warn("reconciler: cannot stat file, skipping", "path", relPath, "error", err)
		return nil
	}

	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		s.logger.Debug("reconciler: file exceeds max_file_size, excluding", "path", relPath, "size", info.Size())
		return nil
	}

	visited[relPath] = true

	mtime := unixSeconds(info.ModTime())

	existing, err := s.store.GetRecord(ctx, relPath)
	if err != nil {
		var notFound *catalog.ErrNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reconciler: lookup %q: %w", relPath, err)
		}

		return s.trackNew(ctx, fullPath, relPath, enrichmentVersion, now, info.Size(), mtime, cs)
	}

	if existing.MissingSince != nil {
		if err := s.store.ClearMissing(ctx, relPath, now); err != nil {
			return fmt.Errorf("reconciler: clear missing %q: %w", relPath, err)
		}
	}

	if mtimeClose(existing.Mtime, mtime) && existing.Size == info.Size() {
		cs.Unchanged++
		return nil
	}

	hash, err := contenthash.File(fullPath)
	if err != nil {
		s.logger.Warn("reconciler: hash failed, skipping", "path", relPath, "error", err)
		return nil
	}

	if hash == existing.ContentHash {
		// mtime/size moved (e.g. a touch or a re-save with identical bytes)
		// but content didn't — refresh the baseline without flagging a
		// real change.
		cs.MtimeSkipped++
		return s.store.EnsureTracked(ctx, relPath, hash, info.Size(), mtime, enrichmentVersion, now)
	}

	cs.Modified = append(cs.Modified, relPath)

	return s.store.EnsureTracked(ctx, relPath, hash, info.Size(), mtime, enrichmentVersion, now)
}

func (s *Scanner) trackNew(ctx context.Context, fullPath, relPath, enrichmentVersion string, now int64, size int64, mtime float64, cs *ChangeSet) error {
	hash, err := contenthash.File(fullPath)
	if err != nil {
		s.logger.Warn("reconciler: hash failed for new file, skipping", "path", relPath, "error", err)
		return nil
	}

	if err := s.store.EnsureTracked(ctx, relPath, hash, size, mtime, enrichmentVersion, now); err != nil {
		return fmt.Errorf("reconciler: track new %q: %w", relPath, err)
	}

	cs.New = append(cs.New, relPath)

	return nil
}

// detectMissing diffs the Catalog's tracked paths against what the walk
// visited, marking the difference missing (never deleting remotely —
// spec.md P6).
func (s *Scanner) detectMissing(ctx context.Context, visited map[string]bool, now int64) ([]string, error) {
	tracked, err := s.store.ListTrackedPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: list tracked paths: %w", err)
	}

	var missing []string

	for _, p := range tracked {
		if !visited[p] {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		if err := s.store.MarkMissing(ctx, missing, now); err != nil {
			return nil, fmt.Errorf("reconciler: mark missing: %w", err)
		}
	}

	return missing, nil
}
