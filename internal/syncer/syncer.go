// Package syncer wires discovery, planning, dispatch and aggregation into
// one run.
package syncer

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yuya-takeyama/split-sync/internal/config"
	"github.com/yuya-takeyama/split-sync/internal/plan"
	"github.com/yuya-takeyama/split-sync/internal/progress"
	"github.com/yuya-takeyama/split-sync/internal/summary"
	"github.com/yuya-takeyama/split-sync/internal/transfer"
	"github.com/yuya-takeyama/split-sync/internal/walker"
	"github.com/yuya-takeyama/split-sync/internal/worker"
	"github.com/yuya-takeyama/split-sync/pkg/s3client"
)

// Syncer runs one sync from a validated configuration.
type Syncer struct {
	cfg        *config.Config
	logger     logrus.FieldLogger
	transferer transfer.Transferer
}

type Option func(*Syncer)

// WithTransferer replaces the transfer backend chosen from the destination.
func WithTransferer(t transfer.Transferer) Option {
	return func(s *Syncer) {
		s.transferer = t
	}
}

func New(cfg *config.Config, logger logrus.FieldLogger, opts ...Option) *Syncer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Syncer{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run validates cfg and performs a full sync with the default backend.
func Run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*summary.Summary, error) {
	return New(cfg, logger).Run(ctx)
}

// Run performs the sync. The returned error covers configuration and setup
// problems detected before dispatch; unit failures are reported through the
// summary instead.
func (s *Syncer) Run(ctx context.Context) (*summary.Summary, error) {
	start := time.Now()
	cfg := s.cfg

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := s.logger.WithField("run_id", runID)

	t, err := s.resolveTransferer(ctx)
	if err != nil {
		return nil, err
	}

	w, err := walker.NewWalker(cfg.Source, walker.Options{
		MaxDepth:  cfg.MaxDepth,
		Threshold: cfg.ThresholdBytes(),
		Includes:  cfg.Includes,
		Excludes:  cfg.Excludes,
		Logger:    log,
	})
	if err != nil {
		return nil, &config.ValidationError{Field: "source", Reason: "cannot scan", Err: err}
	}

	p := plan.Build(w.Files(), plan.Options{
		BatchSize:  cfg.BatchSize,
		SortBySize: cfg.SortBySize,
	})

	log.WithFields(logrus.Fields{
		"files":   p.TotalFiles,
		"bytes":   p.TotalBytes,
		"singles": p.Singles,
		"batches": p.Batches,
		"jobs":    cfg.Jobs,
		"dry_run": cfg.DryRun,
	}).Infof("Syncing %s to %s", cfg.Source, cfg.Destination)

	for _, u := range p.Units {
		log.WithFields(logrus.Fields{
			"job":   u.ID(),
			"kind":  u.Kind(),
			"files": len(u.RelPaths()),
			"bytes": u.Bytes(),
		}).Debug(plan.Describe(u))
	}

	if cfg.PlanJSONFile != "" {
		if err := writePlanResult(cfg.PlanJSONFile, runID, p); err != nil {
			return nil, fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	var metrics *progress.Metrics
	if cfg.MetricsFile != "" {
		metrics = progress.NewMetrics()
	}

	agg := progress.NewAggregator(len(p.Units), p.TotalBytes, progress.Options{
		Logger:  log,
		Metrics: metrics,
	})
	stopReporter := agg.StartReporter(ctx, cfg.ProgressEvery())

	worker.NewPool(t, worker.Options{
		Jobs:       cfg.Jobs,
		SourceRoot: w.Root(),
		DestRoot:   cfg.Destination,
		DryRun:     cfg.DryRun,
		Resume:     cfg.Resume,
		LogDir:     cfg.LogDir,
		Logger:     log,
	}).Run(ctx, p.Units, agg)

	stopReporter()
	tally := agg.Close()

	sum := summary.Summarize(tally, agg.Failures(), time.Since(start))
	sum.DryRun = cfg.DryRun

	// Report files are written even when units failed.
	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).Warn("Failed to write metrics file")
		}
	}
	if cfg.ResultJSONFile != "" {
		if err := writeSyncResult(cfg.ResultJSONFile, runID, sum); err != nil {
			log.WithError(err).Warn("Failed to write result JSON")
		}
	}

	return sum, nil
}

func (s *Syncer) resolveTransferer(ctx context.Context) (transfer.Transferer, error) {
	if s.transferer != nil {
		return s.transferer, nil
	}

	cfg := s.cfg
	if cfg.IsS3Destination() {
		var configOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSProfile != "" {
			configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		if cfg.AWSRegion != "" {
			configOpts = append(configOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return transfer.NewS3(s3client.NewAWSClient(awsCfg), cfg.Destination)
	}

	program, err := exec.LookPath(cfg.RsyncPath)
	if err != nil {
		return nil, &config.ValidationError{Field: "rsync-path", Reason: "transfer tool not found", Err: err}
	}
	return transfer.NewRsync(program, cfg.RsyncArgs), nil
}
