package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/yuya-takeyama/split-sync/internal/plan"
)

const outputTailSize = 4 * 1024

// Rsync transfers units by running rsync, one invocation per unit. Single
// files get partial-transfer support on resume.
type Rsync struct {
	program   string
	extraArgs []string
}

// NewRsync creates an rsync-backed Transferer. program may be a bare name
// resolved through PATH.
func NewRsync(program string, extraArgs []string) *Rsync {
	if program == "" {
		program = "rsync"
	}
	return &Rsync{
		program:   program,
		extraArgs: extraArgs,
	}
}

// Command is a fully resolved rsync invocation.
type Command struct {
	Args  []string
	Stdin []byte
	// Dirs must exist before the command runs.
	Dirs []string
}

// BuildCommand returns the rsync invocation for req without running it.
// Both unit kinds name their members relative to the source root through
// --files-from, so the destination argument is always a directory and stays
// valid in dry-run mode before it exists.
func (r *Rsync) BuildCommand(req Request) (*Command, error) {
	args := []string{"--archive"}
	if req.DryRun {
		args = append(args, "--dry-run")
	}

	switch req.Unit.(type) {
	case *plan.SingleFile:
		if req.Resume {
			args = append(args, "--partial", "--append-verify")
		}
	case *plan.Batch:
		if req.Resume {
			args = append(args, "--partial")
		}
	default:
		return nil, fmt.Errorf("unsupported unit type %T", req.Unit)
	}

	args = append(args, "--from0", "--files-from=-")
	args = append(args, r.extraArgs...)
	args = append(args, withTrailingSlash(req.SourceRoot), withTrailingSlash(req.DestRoot))

	var stdin bytes.Buffer
	for _, p := range req.Unit.RelPaths() {
		stdin.WriteString(p)
		stdin.WriteByte(0)
	}

	return &Command{Args: args, Stdin: stdin.Bytes(), Dirs: []string{req.DestRoot}}, nil
}

// Transfer runs rsync for one unit. Outside dry-run mode the destination
// root is created first; creation is idempotent so concurrent units may
// share it. rsync creates the member parents itself.
func (r *Rsync) Transfer(ctx context.Context, req Request) error {
	invocation, err := r.BuildCommand(req)
	if err != nil {
		return err
	}

	if !req.DryRun {
		for _, dir := range invocation.Dirs {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create destination directory: %w", err)
			}
		}
	}

	cmd := exec.CommandContext(ctx, r.program, invocation.Args...)
	if invocation.Stdin != nil {
		cmd.Stdin = bytes.NewReader(invocation.Stdin)
	}

	tail := newTailBuffer(outputTailSize)
	var out io.Writer = tail
	if req.Log != nil {
		fmt.Fprintf(req.Log, "$ %s %q\n", r.program, invocation.Args)
		out = io.MultiWriter(req.Log, tail)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Program:  r.program,
				ExitCode: exitErr.ExitCode(),
				Output:   tail.String(),
				Err:      err,
			}
		}
		return fmt.Errorf("run %s: %w", r.program, err)
	}

	return nil
}

func withTrailingSlash(p string) string {
	if p == "" || p[len(p)-1] == filepath.Separator {
		return p
	}
	return p + string(filepath.Separator)
}
