package syncer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/yuya-takeyama/split-sync/internal/plan"
	"github.com/yuya-takeyama/split-sync/internal/summary"
)

// PlanResult represents the planned units before execution
type PlanResult struct {
	RunID   string      `json:"run_id"`
	Units   []PlanUnit  `json:"units"`
	Summary PlanSummary `json:"summary"`
}

type PlanUnit struct {
	Job   int      `json:"job"`
	Kind  string   `json:"kind"`
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

type PlanSummary struct {
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
	Singles int   `json:"singles"`
	Batches int   `json:"batches"`
}

// SyncResult represents the execution results
type SyncResult struct {
	RunID   string        `json:"run_id"`
	Result  string        `json:"result"`
	DryRun  bool          `json:"dry_run"`
	Errors  []ErrorUnit   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ErrorUnit struct {
	Job   int      `json:"job"`
	Kind  string   `json:"kind"`
	Files []string `json:"files"`
	Error string   `json:"error"`
	Log   string   `json:"log,omitempty"`
}

type ResultSummary struct {
	Completed          int   `json:"completed"`
	Failed             int   `json:"failed"`
	Bytes              int64 `json:"bytes"`
	WouldTransferBytes int64 `json:"would_transfer_bytes,omitempty"`
	DurationMS         int64 `json:"duration_ms"`
}

func writePlanResult(path, runID string, p *plan.Plan) error {
	result := PlanResult{
		RunID: runID,
		Units: make([]PlanUnit, 0, len(p.Units)),
		Summary: PlanSummary{
			Files:   p.TotalFiles,
			Bytes:   p.TotalBytes,
			Singles: p.Singles,
			Batches: p.Batches,
		},
	}
	for _, u := range p.Units {
		result.Units = append(result.Units, PlanUnit{
			Job:   u.ID(),
			Kind:  string(u.Kind()),
			Files: u.RelPaths(),
			Bytes: u.Bytes(),
		})
	}
	return writeJSON(path, result)
}

func writeSyncResult(path, runID string, s *summary.Summary) error {
	result := SyncResult{
		RunID:  runID,
		Result: string(s.Result()),
		DryRun: s.DryRun,
		Errors: make([]ErrorUnit, 0, len(s.Failures)),
		Summary: ResultSummary{
			Completed:  s.Tally.Completed,
			Failed:     s.Tally.Failed,
			DurationMS: s.Duration.Milliseconds(),
		},
	}
	if s.DryRun {
		result.Summary.WouldTransferBytes = s.Tally.Bytes
	} else {
		result.Summary.Bytes = s.Tally.Bytes
	}
	for _, o := range s.Failures {
		e := ErrorUnit{Log: o.LogPath}
		if o.Unit != nil {
			e.Job = o.Unit.ID()
			e.Kind = string(o.Unit.Kind())
			e.Files = o.Unit.RelPaths()
		}
		if o.Err != nil {
			e.Error = o.Err.Error()
		}
		result.Errors = append(result.Errors, e)
	}
	return writeJSON(path, result)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
