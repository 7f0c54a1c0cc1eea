package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStageProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgressReporter(buf)

	p.Stage("dump", 1500*time.Millisecond, nil)
	p.Stage("upload", 2*time.Second, errors.New("connection refused"))
	p.Finish(errors.New("remote transfer failed"))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "ok dump") || !strings.Contains(lines[0], "1.5s") {
		t.Errorf("stage line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "FAIL upload") || !strings.Contains(lines[1], "connection refused") {
		t.Errorf("failed stage line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "failed after") {
		t.Errorf("finish line = %q", lines[2])
	}
}

func TestStageProgressSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgressReporter(buf)
	p.Finish(nil)

	if !strings.HasPrefix(buf.String(), "ok done in") {
		t.Errorf("output = %q", buf.String())
	}
}
