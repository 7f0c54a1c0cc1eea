// Package collect copies the selected part of a file tree into a backup
// staging directory.
package collect

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Rules select which files are collected. Directory patterns are matched
// against slash separated paths relative to the source root; file patterns
// are shell globs matched against the base name.
type Rules struct {
	// IncludeDirectories, when non-empty, restricts collection to files
	// below a matching directory.
	IncludeDirectories []string

	// ExcludeDirectories prunes matching directories and everything below.
	ExcludeDirectories []string

	// IncludeFiles, when non-empty, is a whitelist of file name patterns.
	IncludeFiles []string

	// ExcludeFiles is a blacklist of file name patterns. It always wins.
	ExcludeFiles []string

	// AlwaysIncludeFiles are collected in addition to the whitelist.
	AlwaysIncludeFiles []string

	// SkipPaths are absolute paths never collected, such as the backup
	// directory itself when it lives inside the source tree.
	SkipPaths []string
}

// Stats summarises a collection.
type Stats struct {
	Files int
	Bytes int64
}

// Collector copies files matching Rules.
type Collector struct {
	rules  Rules
	logger *slog.Logger
}

// New creates a collector. Blank patterns are dropped.
func New(rules Rules, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	rules.IncludeDirectories = cleanDirs(rules.IncludeDirectories)
	rules.ExcludeDirectories = cleanDirs(rules.ExcludeDirectories)
	rules.IncludeFiles = clean(rules.IncludeFiles)
	rules.ExcludeFiles = clean(rules.ExcludeFiles)
	rules.AlwaysIncludeFiles = clean(rules.AlwaysIncludeFiles)

	skip := make([]string, 0, len(rules.SkipPaths))
	for _, p := range rules.SkipPaths {
		if abs, err := filepath.Abs(p); err == nil {
			skip = append(skip, abs)
		}
	}
	rules.SkipPaths = skip

	return &Collector{
		rules:  rules,
		logger: logger.With("component", "collect"),
	}
}

func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanDirs(items []string) []string {
	out := clean(items)
	for i, s := range out {
		out[i] = strings.Trim(filepath.ToSlash(s), "/")
	}
	return out
}

// Collect copies the selected files below src into dst, preserving their
// relative paths. A missing src collects nothing.
func (c *Collector) Collect(ctx context.Context, src, dst string) (Stats, error) {
	var stats Stats

	root, err := filepath.Abs(src)
	if err != nil {
		return stats, err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		c.logger.Warn("source directory does not exist", "path", src)
		return stats, nil
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.skipped(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && c.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.Match(rel) {
			return nil
		}

		n, err := copyFile(p, filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return stats, err
	}

	c.logger.Info("collected files", "source", src, "files", stats.Files, "bytes", stats.Bytes)
	return stats, nil
}

func (c *Collector) skipped(p string) bool {
	for _, s := range c.rules.SkipPaths {
		if p == s {
			return true
		}
	}
	return false
}

// Match reports whether the file at rel, a slash separated path relative to
// the source root, is collected.
func (c *Collector) Match(rel string) bool {
	dir, name := path.Split(rel)
	dir = strings.TrimSuffix(dir, "/")

	if dir != "" && c.excludedDir(dir) {
		return false
	}
	if len(c.rules.IncludeDirectories) > 0 && !c.includedDir(dir) {
		return false
	}
	if matchAny(c.rules.ExcludeFiles, name) {
		return false
	}
	if len(c.rules.IncludeFiles) == 0 {
		return true
	}
	return matchAny(c.rules.IncludeFiles, name) || matchAny(c.rules.AlwaysIncludeFiles, name)
}

func (c *Collector) excludedDir(dir string) bool {
	for _, pattern := range c.rules.ExcludeDirectories {
		if dirMatches(pattern, dir) {
			return true
		}
	}
	return false
}

func (c *Collector) includedDir(dir string) bool {
	if dir == "" {
		return false
	}
	for _, pattern := range c.rules.IncludeDirectories {
		if dirMatches(pattern, dir) {
			return true
		}
	}
	return false
}

// dirMatches reports whether dir or one of its ancestors matches pattern,
// either as a path ("app/public"), a glob ("logs/*") or a single segment
// name ("cache").
func dirMatches(pattern, dir string) bool {
	for d := dir; d != "." && d != ""; d = path.Dir(d) {
		if d == pattern {
			return true
		}
		if ok, _ := path.Match(pattern, d); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := path.Match(pattern, path.Base(d)); ok {
				return true
			}
		}
	}
	return false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}

	return n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}
