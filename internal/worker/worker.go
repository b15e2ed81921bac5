package worker

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/yuya-takeyama/split-sync/internal/logging"
	"github.com/yuya-takeyama/split-sync/internal/plan"
	"github.com/yuya-takeyama/split-sync/internal/progress"
	"github.com/yuya-takeyama/split-sync/internal/transfer"
)

// Sink receives one outcome per unit. Report is called concurrently from
// worker goroutines.
type Sink interface {
	Report(progress.Outcome)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(progress.Outcome)

func (f SinkFunc) Report(o progress.Outcome) { f(o) }

// Options configures a Pool.
type Options struct {
	// Jobs is the concurrency ceiling. It must be at least 1.
	Jobs       int
	SourceRoot string
	DestRoot   string
	DryRun     bool
	Resume     bool
	// LogDir enables per-job log files when set.
	LogDir string
	Logger logrus.FieldLogger
}

// Pool manages concurrent workers
type Pool struct {
	transferer transfer.Transferer
	opts       Options
	logger     logrus.FieldLogger
}

// NewPool creates a new worker pool
func NewPool(t transfer.Transferer, opts Options) *Pool {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{
		transferer: t,
		opts:       opts,
		logger:     logger,
	}
}

// Run submits units in order, keeping at most Jobs of them in flight, and
// blocks until every unit has reported to sink. A failed unit never stops
// the submission of later ones. Units not yet started when ctx is done are
// reported as failed without running.
func (p *Pool) Run(ctx context.Context, units []plan.Unit, sink Sink) {
	wp := pool.New().WithMaxGoroutines(p.opts.Jobs)

	for _, unit := range units {
		// Go blocks while all slots are taken.
		wp.Go(func() {
			sink.Report(p.execute(ctx, unit))
		})
	}

	wp.Wait()
}

func (p *Pool) execute(ctx context.Context, unit plan.Unit) progress.Outcome {
	start := time.Now()
	outcome := progress.Outcome{Unit: unit}

	log := p.logger.WithFields(logrus.Fields{
		"job":   unit.ID(),
		"kind":  unit.Kind(),
		"files": len(unit.RelPaths()),
		"bytes": unit.Bytes(),
	})

	if err := ctx.Err(); err != nil {
		outcome.Err = err
		log.WithError(err).Error("Job not started")
		return outcome
	}

	var jobLog io.Writer
	if p.opts.LogDir != "" {
		f, err := logging.OpenJobLog(p.opts.LogDir, unit.ID())
		if err != nil {
			outcome.Err = err
			outcome.Elapsed = time.Since(start)
			log.WithError(err).Error("Job failed")
			return outcome
		}
		defer f.Close()
		jobLog = f
		outcome.LogPath = f.Name()
	}

	log.Debug("Job started")

	err := p.transferer.Transfer(ctx, transfer.Request{
		Unit:       unit,
		SourceRoot: p.opts.SourceRoot,
		DestRoot:   p.opts.DestRoot,
		DryRun:     p.opts.DryRun,
		Resume:     p.opts.Resume,
		Log:        jobLog,
	})
	outcome.Elapsed = time.Since(start)

	if err != nil {
		outcome.Err = err
		entry := log.WithError(err)
		if outcome.LogPath != "" {
			entry = entry.WithField("log", outcome.LogPath)
		}
		entry.Error("Job failed")
		return outcome
	}

	outcome.Success = true
	outcome.Bytes = unit.Bytes()
	log.WithField("elapsed", outcome.Elapsed.Round(time.Millisecond)).Info("Job finished")
	return outcome
}
