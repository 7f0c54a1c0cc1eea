package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressReporter reports the stages of a backup run as they finish.
type ProgressReporter interface {
	Stage(name string, d time.Duration, err error)
	Finish(err error)
}

// StageProgress prints one line per finished stage.
type StageProgress struct {
	mu      sync.Mutex
	started time.Time
	writer  io.Writer
	symbols bool
}

// NewProgressReporter creates a reporter that writes to w. If w is nil, it
// defaults to os.Stderr. Check marks are only used on terminals.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &StageProgress{
		started: time.Now(),
		writer:  w,
		symbols: IsTerminal(w),
	}
}

// Stage reports a finished stage.
func (p *StageProgress) Stage(name string, d time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		fmt.Fprintf(p.writer, "%s %-18s %8s  %v\n", p.mark(false), name, Duration(d), err)
		return
	}
	fmt.Fprintf(p.writer, "%s %-18s %8s\n", p.mark(true), name, Duration(d))
}

// Finish prints the total elapsed time.
func (p *StageProgress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := Duration(time.Since(p.started))
	if err != nil {
		fmt.Fprintf(p.writer, "%s failed after %s: %v\n", p.mark(false), elapsed, err)
		return
	}
	fmt.Fprintf(p.writer, "%s done in %s\n", p.mark(true), elapsed)
}

func (p *StageProgress) mark(ok bool) string {
	switch {
	case p.symbols && ok:
		return "✓"
	case p.symbols:
		return "✗"
	case ok:
		return "ok"
	default:
		return "FAIL"
	}
}
