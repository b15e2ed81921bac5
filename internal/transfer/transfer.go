// Package transfer runs the byte-moving step for one unit of work. The
// default backend drives rsync as an external process; S3 destinations are
// served by an in-process uploader.
package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/yuya-takeyama/split-sync/internal/plan"
)

// Request describes one unit's transfer. Paths are carried as data and are
// never joined into a shell command line.
type Request struct {
	Unit       plan.Unit
	SourceRoot string
	DestRoot   string
	DryRun     bool
	Resume     bool

	// Log receives the tool's output. It may be nil.
	Log io.Writer
}

// Transferer moves the files of one unit. A nil error means the unit
// succeeded; any error marks it failed.
type Transferer interface {
	Transfer(ctx context.Context, req Request) error
}

// Func adapts an ordinary function to the Transferer interface.
type Func func(ctx context.Context, req Request) error

func (f Func) Transfer(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// ExitError reports a non-zero exit status from an external transfer tool.
type ExitError struct {
	Program  string
	ExitCode int
	Output   string // tail of the combined output
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Program, e.ExitCode)
	if line := lastLine(e.Output); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
