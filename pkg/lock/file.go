package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File is a lock held by the existence of a file created with O_EXCL. A
// lock file older than TTL is considered abandoned by a crashed run and
// is taken over.
type File struct {
	Path string
	TTL  time.Duration
}

// NewFile creates a file lock.
func NewFile(path string, ttl time.Duration) *File {
	return &File{Path: path, TTL: ttl}
}

// Acquire creates the lock file.
func (f *File) Acquire(ctx context.Context) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return nil, fmt.Errorf("lock directory: %w", err)
	}

	token := uuid.NewString()
	err := f.create(token)
	if errors.Is(err, fs.ErrExist) && f.stale() {
		os.Remove(f.Path)
		err = f.create(token)
	}
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	return func(context.Context) error {
		data, err := os.ReadFile(f.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		// Taken over after going stale; not ours to remove any more.
		if !strings.Contains(string(data), token) {
			return nil
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}

func (f *File) create(token string) error {
	fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.fill(fh, token)
}

// fill writes the lock contents and closes fh. A lock file that could not
// be written completely is removed so it does not block later runs.
func (f *File) fill(fh io.WriteCloser, token string) error {
	content := strconv.Itoa(os.Getpid()) + "\n" + token + "\n" + time.Now().UTC().Format(time.RFC3339) + "\n"
	_, werr := io.WriteString(fh, content)
	if cerr := fh.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			werr = errors.Join(werr, err)
		}
		return werr
	}
	return nil
}

func (f *File) stale() bool {
	if f.TTL <= 0 {
		return false
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	return time.Since(info.ModTime()) > f.TTL
}
