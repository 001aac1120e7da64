// Package storage persists uploaded job artifacts (recipient CSVs and HTML
// templates) on local disk under unique names.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store writes and reads job artifacts in a single directory. Stored names
// are generated, never caller-controlled, so two uploads of "contacts.csv"
// cannot collide or overwrite.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Options configures a Store.
type Options struct {
	Dir    string
	Logger *slog.Logger
	// Now is injectable for tests.
	Now func() time.Time
}

// NewStore creates the artifact store and its directory.
func NewStore(opts Options) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, logger: opts.Logger, now: now}, nil
}

// Save streams r to disk and returns the stored filename. The name embeds a
// timestamp and a random suffix plus a sanitized version of the original
// base name, keeping uploads recognizable in the directory listing.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	stored := fmt.Sprintf("%s_%s_%s",
		s.now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		sanitizeName(originalName))

	path := filepath.Join(s.dir, stored)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", stored, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write artifact %s: %w", stored, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", stored, err)
	}

	if s.logger != nil {
		s.logger.Debug("artifact stored", "name", stored)
	}
	return stored, nil
}

// Open returns a reader for a stored artifact. Only bare filenames produced
// by Save are accepted; anything resembling a path is rejected.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	return os.Open(filepath.Join(s.dir, name))
}

// sanitizeName reduces an uploaded filename to a safe ASCII-ish base name.
func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "upload"
	}
	return out
}
