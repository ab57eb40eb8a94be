// Package blob stores uploaded file bytes on the local filesystem,
// addressed by a generated name that is independent of any metadata.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tmpSuffix = ".tmp"

var (
	ErrAbsent      = errors.New("blob not found")
	ErrTooLarge    = errors.New("blob exceeds size limit")
	ErrInvalidName = errors.New("invalid blob name")
	ErrIO          = errors.New("blob i/o failure")
)

// Store manages blobs under a single root directory.
type Store struct {
	root string
}

// New creates the root directory if it does not exist yet.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// Put streams r into the blob called name. At most limit bytes are accepted;
// a larger payload is rejected with ErrTooLarge. Data is written to a hidden
// temp file which is renamed into place only after a successful fsync, so a
// failed or cancelled write never leaves a truncated blob behind.
func (s *Store) Put(ctx context.Context, name string, r io.Reader, limit int64) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}

	fullPath := filepath.Join(s.root, name)
	tmpPath := filepath.Join(s.root, "."+name+tmpSuffix)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %w", ErrIO, err)
	}

	abort := func(cause error) (int64, error) {
		f.Close()
		os.Remove(tmpPath)
		return 0, cause
	}

	src := &ctxReader{ctx: ctx, r: r}
	n, err := io.Copy(f, io.LimitReader(src, limit+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return abort(ctxErr)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return abort(ErrTooLarge)
		}
		return abort(fmt.Errorf("%w: write %s: %w", ErrIO, name, err))
	}
	if n > limit {
		return abort(ErrTooLarge)
	}

	if err := f.Sync(); err != nil {
		return abort(fmt.Errorf("%w: fsync %s: %w", ErrIO, name, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: close %s: %w", ErrIO, name, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: rename %s: %w", ErrIO, name, err)
	}

	return n, nil
}

// Stat reports the current size of a blob. A missing blob, including one that
// disappeared while being checked, is reported as present=false with no error.
func (s *Store) Stat(name string) (size int64, present bool, err error) {
	if err := ValidateName(name); err != nil {
		return 0, false, err
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: stat %s: %w", ErrIO, name, err)
	}
	if !info.Mode().IsRegular() {
		return 0, false, nil
	}
	return info.Size(), true, nil
}

// Open returns the blob for reading. The caller must close it.
func (s *Store) Open(name string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, name, err)
	}
	return f, nil
}

// Delete removes a blob. Deleting a blob that is already gone is not an
// error: removed is false in that case.
func (s *Store) Delete(name string) (removed bool, err error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	if err := os.Remove(filepath.Join(s.root, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: delete %s: %w", ErrIO, name, err)
	}
	return true, nil
}

// Names lists committed blobs. In-flight temp files are skipped.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: read root: %w", ErrIO, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// StaleTemps lists temp files last modified before cutoff. They are left
// behind when the process dies in the middle of a Put.
func (s *Store) StaleTemps(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: read root: %w", ErrIO, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, name, err)
		}
		if info.ModTime().Before(cutoff) {
			names = append(names, name)
		}
	}
	return names, nil
}

// ValidateName rejects names that could address anything outside the root.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ctxReader stops a copy as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
