package retention

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store is a place archives live: the local backup directory or a directory
// on a remote host.
type Store interface {
	// Name identifies the store in logs and metrics ("local", "remote").
	Name() string

	// List returns the file names currently in the store.
	List(ctx context.Context) ([]string, error)

	// Delete removes a single archive. Removing an archive that no longer
	// exists is not an error.
	Delete(ctx context.Context, name string) error
}

// LocalStore is a Store backed by a directory on the local filesystem.
type LocalStore struct {
	Dir string
}

// NewLocalStore returns a store over dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

// Name returns "local".
func (s *LocalStore) Name() string { return "local" }

// List returns the regular files in the directory. A directory that does not
// exist yet holds no archives.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", s.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes name from the directory.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid archive name %q", name)
	}

	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ParseListing splits the output of a remote `ls -1` into names: one per
// line, surrounding whitespace trimmed, blank lines dropped.
func ParseListing(output string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names
}
