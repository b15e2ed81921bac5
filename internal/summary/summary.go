// Package summary turns the final tally of a run into an overall result.
package summary

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/yuya-takeyama/split-sync/internal/plan"
	"github.com/yuya-takeyama/split-sync/internal/progress"
)

// Result is the overall outcome of a run.
type Result string

const (
	Success Result = "SUCCESS"
	Failure Result = "FAILURE"
)

// Summary is the final report of a run.
type Summary struct {
	Tally    progress.Tally
	Failures []progress.Outcome
	Duration time.Duration
	DryRun   bool
}

// Summarize builds the report from the final tally. failures should hold the
// failed outcomes reported during the run.
func Summarize(t progress.Tally, failures []progress.Outcome, d time.Duration) *Summary {
	return &Summary{
		Tally:    t,
		Failures: failures,
		Duration: d,
	}
}

// Result is FAILURE when any unit failed, regardless of how many succeeded.
func (s *Summary) Result() Result {
	if s.Tally.Failed > 0 {
		return Failure
	}
	return Success
}

// Err returns nil on success, otherwise an error listing every failed unit.
func (s *Summary) Err() error {
	if s.Result() == Success {
		return nil
	}

	var result *multierror.Error
	for _, o := range s.Failures {
		result = multierror.Append(result, failureError(o))
	}
	if result == nil {
		return fmt.Errorf("%d units failed", s.Tally.Failed)
	}
	return result
}

// Print writes the human readable report to w.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintln(w)
	if s.DryRun {
		fmt.Fprintln(w, "=== Summary (dry run) ===")
	} else {
		fmt.Fprintln(w, "=== Summary ===")
	}
	if s.DryRun {
		// Nothing was written; the bytes are what a real run would move.
		fmt.Fprintf(w, "Would transfer: %d units (%s)\n", s.Tally.Completed, units.BytesSize(float64(s.Tally.Bytes)))
	} else {
		fmt.Fprintf(w, "Completed: %d units (%s)\n", s.Tally.Completed, units.BytesSize(float64(s.Tally.Bytes)))
	}
	if s.Tally.Failed > 0 {
		fmt.Fprintf(w, "Failed: %d units\n", s.Tally.Failed)
	}
	fmt.Fprintf(w, "Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Result: %s\n", s.Result())

	if len(s.Failures) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Job", "Kind", "Files", "First path", "Error"})
	for _, o := range s.Failures {
		t.AppendRow(failureRow(o))
	}
	t.Render()
}

func failureError(o progress.Outcome) error {
	name := "unknown job"
	if o.Unit != nil {
		name = plan.Describe(o.Unit)
	}
	if o.Err == nil {
		return fmt.Errorf("%s: failed", name)
	}
	return fmt.Errorf("%s: %w", name, o.Err)
}

func failureRow(o progress.Outcome) table.Row {
	if o.Unit == nil {
		return table.Row{"-", "-", 0, "-", errText(o.Err)}
	}

	first := "-"
	if paths := o.Unit.RelPaths(); len(paths) > 0 {
		first = paths[0]
	}
	return table.Row{o.Unit.ID(), o.Unit.Kind(), len(o.Unit.RelPaths()), first, errText(o.Err)}
}

func errText(err error) string {
	if err == nil {
		return "-"
	}
	return err.Error()
}
