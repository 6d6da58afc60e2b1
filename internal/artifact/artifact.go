// Package artifact manages the on-disk area holding per-job working
// directories, their staged inputs and the produced videos.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// URLPrefix is the HTTP path under which the store root is served.
const URLPrefix = "/uploads/"

const lockName = ".avatargate.lock"

var (
	ErrNoOutput        = errors.New("no output artifact found")
	ErrAmbiguousOutput = errors.New("more than one output artifact found")
	ErrOutsideRoot     = errors.New("path escapes artifact root")
)

// Store is the artifact root. Only one process may hold it at a time.
type Store struct {
	root string
	lock *flock.Flock
}

// Open creates root if needed and takes an exclusive lock on it.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	lock := flock.New(filepath.Join(abs, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire artifact lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("artifact root %s is in use by another process", abs)
	}
	return &Store{root: abs, lock: lock}, nil
}

// Close releases the root lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

func (s *Store) Root() string { return s.root }

// NewWorkDir allocates a fresh, empty working directory.
func (s *Store) NewWorkDir() (string, error) {
	dir := filepath.Join(s.root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// Stage copies r into dir as name plus the (sanitised) extension of the
// client-supplied filename and returns the written path.
func (s *Store) Stage(dir, name, filename string, r io.Reader) (string, error) {
	if err := s.within(dir); err != nil {
		return "", err
	}
	p := filepath.Join(dir, name+cleanExt(filename))
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("stage %s: write: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("stage %s: close: %w", name, err)
	}
	return p, nil
}

// cleanExt keeps the lower-cased extension restricted to [a-z0-9].
func cleanExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('.')
	for _, c := range ext[1:] {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// FindOutput scans dir once for regular files whose extension is one of
// exts, ignoring the paths in exclude. Exactly one match is required.
func (s *Store) FindOutput(dir string, exts []string, exclude []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}

	var found []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if slices.Contains(exclude, p) {
			continue
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			found = append(found, p)
		}
	}

	switch len(found) {
	case 0:
		return "", ErrNoOutput
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %d candidates in %s", ErrAmbiguousOutput, len(found), dir)
	}
}

// Reference returns p relative to the root with forward slashes.
func (s *Store) Reference(p string) (string, error) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", fmt.Errorf("reference %s: %w", p, err)
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("reference %s: %w", p, ErrOutsideRoot)
	}
	return filepath.ToSlash(rel), nil
}

// URL maps a reference to the public path it is served under. Each segment
// is percent-escaped; the reference itself stays unescaped on disk and in the store.
func URL(ref string) string {
	u := &url.URL{Path: path.Clean(strings.TrimPrefix(ref, "/"))}
	return URLPrefix + u.EscapedPath()
}

// Remove deletes a referenced file, then its directory if that is now empty.
// A file that is already gone is not an error.
func (s *Store) Remove(ref string) error {
	p := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := s.within(p); err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	dir := filepath.Dir(p)
	if dir != s.root {
		// Fails harmlessly when other files remain.
		_ = os.Remove(dir)
	}
	return nil
}

// RemoveAll deletes a working directory and everything in it.
func (s *Store) RemoveAll(dir string) error {
	if err := s.within(dir); err != nil {
		return err
	}
	if filepath.Clean(dir) == s.root {
		return fmt.Errorf("remove %s: %w", dir, ErrOutsideRoot)
	}
	return os.RemoveAll(dir)
}

// Prune removes the given files from a working directory.
func (s *Store) Prune(files []string) error {
	var errs []error
	for _, f := range files {
		if err := s.within(f); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) within(p string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return nil
}

// Handler serves the artifact root without directory listings or the lock
// file. Mount it under URLPrefix.
func (s *Store) Handler() http.Handler {
	files := http.StripPrefix(strings.TrimSuffix(URLPrefix, "/"), http.FileServer(http.Dir(s.root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || path.Base(r.URL.Path) == lockName {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
