package collect

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, rel := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}

func TestCollector_Match(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		path  string
		want  bool
	}{
		{"no rules", Rules{}, "app/file.txt", true},
		{"root file", Rules{}, "file.txt", true},
		{"excluded segment", Rules{ExcludeDirectories: []string{"cache"}}, "framework/cache/data/x", false},
		{"excluded path", Rules{ExcludeDirectories: []string{"app/tmp"}}, "app/tmp/x.txt", false},
		{"excluded path sibling", Rules{ExcludeDirectories: []string{"app/tmp"}}, "app/tmpfiles/x.txt", true},
		{"excluded glob", Rules{ExcludeDirectories: []string{"logs*"}}, "logs-2024/x.log", false},
		{"included dir", Rules{IncludeDirectories: []string{"app/public"}}, "app/public/img/a.png", true},
		{"outside included dir", Rules{IncludeDirectories: []string{"app/public"}}, "app/private/a.png", false},
		{"root file with include dirs", Rules{IncludeDirectories: []string{"app"}}, "a.png", false},
		{"whitelist hit", Rules{IncludeFiles: []string{"*.jpg", "*.png"}}, "app/a.png", true},
		{"whitelist miss", Rules{IncludeFiles: []string{"*.jpg"}}, "app/a.png", false},
		{"always include", Rules{IncludeFiles: []string{"*.jpg"}, AlwaysIncludeFiles: []string{".env"}}, "app/.env", true},
		{"blacklist wins", Rules{IncludeFiles: []string{"*.log"}, ExcludeFiles: []string{"debug.log"}}, "debug.log", false},
		{"blacklist wins over always", Rules{AlwaysIncludeFiles: []string{"*.key"}, ExcludeFiles: []string{"*.key"}}, "oauth.key", false},
		{"blank patterns ignored", Rules{IncludeFiles: []string{" ", ""}}, "a.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.rules, nil)
			if got := c.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCollector_Collect(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src,
		"app/public/avatar.png",
		"app/public/notes.txt",
		"app/deepstore/archive_2024-01-01.tar.gz",
		"framework/cache/data/blob",
		"logs/laravel.log",
		".env",
	)

	c := New(Rules{
		ExcludeDirectories: []string{"framework/cache", "logs"},
		IncludeFiles:       []string{"*.png", "*.txt"},
		AlwaysIncludeFiles: []string{".env"},
		SkipPaths:          []string{filepath.Join(src, "app", "deepstore")},
	}, nil)

	stats, err := c.Collect(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{".env", "app/public/avatar.png", "app/public/notes.txt"}
	if got := listTree(t, dst); !reflect.DeepEqual(got, want) {
		t.Errorf("collected %v, want %v", got, want)
	}
	if stats.Files != 3 {
		t.Errorf("Files = %d, want 3", stats.Files)
	}

	var wantBytes int64
	for _, rel := range want {
		wantBytes += int64(len(rel))
	}
	if stats.Bytes != wantBytes {
		t.Errorf("Bytes = %d, want %d", stats.Bytes, wantBytes)
	}

	data, err := os.ReadFile(filepath.Join(dst, "app", "public", "notes.txt"))
	if err != nil || string(data) != "app/public/notes.txt" {
		t.Errorf("copied content = %q, %v", data, err)
	}
}

func TestCollector_MissingSource(t *testing.T) {
	c := New(Rules{}, nil)
	stats, err := c.Collect(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir())
	if err != nil || stats.Files != 0 {
		t.Errorf("Collect() = %+v, %v", stats, err)
	}
}

func TestCollector_Cancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(Rules{}, nil).Collect(ctx, src, t.TempDir()); err == nil {
		t.Error("Collect() with cancelled context should fail")
	}
}
