package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type textResult struct {
	Name string `json:"name"`
}

func (r textResult) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, "archive: "+r.Name+"\n")
	return err
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{" JSON ", FormatJSON, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		var cfgErr *ConfigError
		if tt.wantErr && !errors.As(err, &cfgErr) {
			t.Errorf("ParseFormat(%q) error type = %T", tt.in, err)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	f := NewFormatter(FormatText)

	out, err := f.Format("plain message")
	if err != nil || string(out) != "plain message\n" {
		t.Errorf("Format(string) = %q, %v", out, err)
	}

	var buf bytes.Buffer
	if err := f.FormatTo(&buf, textResult{Name: "archive_2024-03-01.tar.gz"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "archive: archive_2024-03-01.tar.gz\n" {
		t.Errorf("FormatTo(Texter) = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		indent bool
	}{
		{"compact", false},
		{"indented", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &JSONFormatter{Indent: tt.indent}
			out, err := f.Format(textResult{Name: "a"})
			if err != nil {
				t.Fatal(err)
			}
			var got textResult
			if err := json.Unmarshal(out, &got); err != nil || got.Name != "a" {
				t.Errorf("Format() = %s, %v", out, err)
			}
			if strings.Contains(string(out), "\n") != tt.indent {
				t.Errorf("indentation mismatch: %q", out)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("json format should return JSONFormatter")
	}
	if _, ok := NewFormatter("anything").(*TextFormatter); !ok {
		t.Error("unknown format should fall back to TextFormatter")
	}
}

func TestHumanHelpers(t *testing.T) {
	if got := Bytes(1500000); got != "1.5 MB" {
		t.Errorf("Bytes() = %q", got)
	}
	if got := Bytes(-1); got != "0 B" {
		t.Errorf("Bytes(-1) = %q", got)
	}
	if got := Ago(time.Time{}); got != "never" {
		t.Errorf("Ago(zero) = %q", got)
	}
	if got := Ago(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Errorf("Ago() = %q", got)
	}
	if got := Duration(1234567 * time.Microsecond); got != "1.2s" {
		t.Errorf("Duration() = %q", got)
	}
}

func TestNewTable(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTable(&buf)
	tw.Write([]byte("NAME\tSIZE\n"))
	tw.Write([]byte("archive_2024-03-01.tar.gz\t1 MB\n"))
	tw.Flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || strings.Index(lines[0], "SIZE") != strings.Index(lines[1], "1 MB") {
		t.Errorf("table not aligned:\n%s", buf.String())
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
}
