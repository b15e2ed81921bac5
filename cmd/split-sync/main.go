package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuya-takeyama/split-sync/internal/config"
	"github.com/yuya-takeyama/split-sync/internal/logging"
	"github.com/yuya-takeyama/split-sync/internal/syncer"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	configFile       string
	jobs             int
	threshold        string
	batchSize        int
	maxDepth         int
	sortBySize       bool
	includes         []string
	excludes         []string
	resume           bool
	logDir           string
	dryRun           bool
	verbose          bool
	quiet            bool
	logFormat        string
	progressInterval time.Duration
	rsyncPath        string
	rsyncArgs        []string
	metricsFile      string
	planJSONFile     string
	resultJSONFile   string
	profile          string
	region           string
)

func main() {
	rootCmd := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "split-sync <source> <destination>",
		Short: "Parallel directory sync that splits work by file size",
		Long: `split-sync copies a directory tree by transferring large files individually
and small files in fixed-size batches, running a bounded number of transfers
at once. Local destinations are served by rsync; s3://bucket/prefix
destinations are uploaded directly.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Path to a TOML config file")
	flags.IntVarP(&jobs, "jobs", "j", config.DefaultJobs, "Maximum number of concurrent transfers")
	flags.StringVar(&threshold, "threshold", config.DefaultThreshold, "Files at or above this size are transferred individually (e.g. 500K, 10M, 1G)")
	flags.IntVar(&batchSize, "batch-size", config.DefaultBatchSize, "Number of small files per batch")
	flags.IntVar(&maxDepth, "max-depth", 0, "Maximum scan depth below the source (0 means unlimited)")
	flags.BoolVar(&sortBySize, "sort-by-size", false, "Transfer the largest files first")
	flags.StringArrayVar(&includes, "include", nil, "Only sync files matching this pattern (multiple allowed)")
	flags.StringArrayVar(&excludes, "exclude", nil, "Skip files matching this pattern (multiple allowed)")
	flags.BoolVar(&resume, "resume", false, "Resume partially transferred files")
	flags.StringVar(&logDir, "log-dir", "", "Write each job's transfer output to its own file in this directory")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "Shows operations without executing")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	flags.BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	flags.StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text, json)")
	flags.DurationVar(&progressInterval, "progress-interval", config.DefaultProgressInterval, "How often to log progress (0 disables)")
	flags.StringVar(&rsyncPath, "rsync-path", config.DefaultRsyncPath, "rsync executable")
	flags.StringArrayVar(&rsyncArgs, "rsync-args", nil, "Extra argument passed to rsync (multiple allowed)")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here after the run")
	flags.StringVar(&planJSONFile, "plan-json-file", "", "Path to output plan as JSON file")
	flags.StringVar(&resultJSONFile, "result-json-file", "", "Path to output result as JSON file")
	flags.StringVar(&profile, "profile", "", "AWS profile to use for s3:// destinations")
	flags.StringVar(&region, "region", "", "AWS region (uses default if not specified)")

	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Verbose: cfg.Verbose,
		Quiet:   cfg.Quiet,
		Format:  cfg.LogFormat,
		Output:  cmd.ErrOrStderr(),
	})

	sum, err := syncer.Run(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	if !cfg.Quiet || sum.Tally.Failed > 0 {
		sum.Print(cmd.ErrOrStderr())
	}

	return sum.Err()
}

// loadConfig merges defaults, the optional config file and the flags that
// were set explicitly, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		if err := config.LoadFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if len(args) > 0 {
		cfg.Source = args[0]
	}
	if len(args) > 1 {
		cfg.Destination = args[1]
	}

	flags := cmd.Flags()
	if flags.Changed("jobs") {
		cfg.Jobs = jobs
	}
	if flags.Changed("threshold") {
		cfg.Threshold = threshold
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = batchSize
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = maxDepth
	}
	if flags.Changed("sort-by-size") {
		cfg.SortBySize = sortBySize
	}
	if flags.Changed("include") {
		cfg.Includes = includes
	}
	if flags.Changed("exclude") {
		cfg.Excludes = excludes
	}
	if flags.Changed("resume") {
		cfg.Resume = resume
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("quiet") {
		cfg.Quiet = quiet
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("progress-interval") {
		cfg.SetProgressEvery(progressInterval)
	}
	if flags.Changed("rsync-path") {
		cfg.RsyncPath = rsyncPath
	}
	if flags.Changed("rsync-args") {
		cfg.RsyncArgs = rsyncArgs
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if flags.Changed("plan-json-file") {
		cfg.PlanJSONFile = planJSONFile
	}
	if flags.Changed("result-json-file") {
		cfg.ResultJSONFile = resultJSONFile
	}
	if flags.Changed("profile") {
		cfg.AWSProfile = profile
	}
	if flags.Changed("region") {
		cfg.AWSRegion = region
	}

	return cfg, nil
}
