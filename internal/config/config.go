package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
)

const (
	DefaultJobs             = 4
	DefaultThreshold        = "10M"
	DefaultBatchSize        = 100
	DefaultProgressInterval = 5 * time.Second
	DefaultRsyncPath        = "rsync"

	s3Scheme = "s3://"
)

// Config holds the effective settings for one run. Values are merged from
// defaults, an optional TOML file and command-line flags, in that order.
type Config struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`

	Jobs       int    `toml:"jobs"`
	Threshold  string `toml:"threshold"`
	BatchSize  int    `toml:"batch_size"`
	MaxDepth   int    `toml:"max_depth"`
	SortBySize bool   `toml:"sort_by_size"`

	Includes []string `toml:"include"`
	Excludes []string `toml:"exclude"`

	Resume bool   `toml:"resume"`
	DryRun bool   `toml:"dry_run"`
	LogDir string `toml:"log_dir"`

	Verbose   bool   `toml:"verbose"`
	Quiet     bool   `toml:"quiet"`
	LogFormat string `toml:"log_format"`

	ProgressInterval duration `toml:"progress_interval"`

	RsyncPath string   `toml:"rsync_path"`
	RsyncArgs []string `toml:"rsync_args"`

	MetricsFile    string `toml:"metrics_file"`
	PlanJSONFile   string `toml:"plan_json_file"`
	ResultJSONFile string `toml:"result_json_file"`

	// AWS settings apply to s3:// destinations only.
	AWSProfile string `toml:"aws_profile"`
	AWSRegion  string `toml:"aws_region"`

	thresholdBytes int64
}

// duration lets TOML files spell intervals as "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Jobs:             DefaultJobs,
		Threshold:        DefaultThreshold,
		BatchSize:        DefaultBatchSize,
		LogFormat:        "text",
		ProgressInterval: duration{DefaultProgressInterval},
		RsyncPath:        DefaultRsyncPath,
	}
}

// LoadFile decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ProgressEvery returns the progress reporting interval.
func (c *Config) ProgressEvery() time.Duration {
	return c.ProgressInterval.Duration
}

// SetProgressEvery overrides the progress reporting interval.
func (c *Config) SetProgressEvery(d time.Duration) {
	c.ProgressInterval.Duration = d
}

// ThresholdBytes returns the parsed size threshold. Valid only after Validate.
func (c *Config) ThresholdBytes() int64 {
	return c.thresholdBytes
}

// IsS3Destination reports whether the destination is an S3 URI.
func (c *Config) IsS3Destination() bool {
	return strings.HasPrefix(c.Destination, s3Scheme)
}

// ValidationError is a configuration error detected before any work starts.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Validate checks every setting and resolves derived values. It touches the
// filesystem only to stat the source and the destination's parent.
func (c *Config) Validate() error {
	if c.Source == "" {
		return &ValidationError{Field: "source", Reason: "path is required"}
	}
	absSource, err := filepath.Abs(c.Source)
	if err != nil {
		return &ValidationError{Field: "source", Reason: "cannot resolve path", Err: err}
	}
	resolved, err := filepath.EvalSymlinks(absSource)
	if err != nil {
		return &ValidationError{Field: "source", Reason: "cannot resolve " + absSource, Err: err}
	}
	absSource = resolved
	info, err := os.Stat(absSource)
	if err != nil {
		return &ValidationError{Field: "source", Reason: "cannot stat " + absSource, Err: err}
	}
	if !info.IsDir() {
		return &ValidationError{Field: "source", Reason: absSource + " is not a directory"}
	}
	c.Source = absSource

	if err := c.validateDestination(); err != nil {
		return err
	}

	if c.Jobs < 1 {
		return &ValidationError{Field: "jobs", Reason: fmt.Sprintf("must be a positive integer, got %d", c.Jobs)}
	}
	if c.MaxDepth < 0 {
		return &ValidationError{Field: "max-depth", Reason: fmt.Sprintf("must not be negative, got %d", c.MaxDepth)}
	}
	if c.BatchSize < 1 {
		return &ValidationError{Field: "batch-size", Reason: fmt.Sprintf("must be a positive integer, got %d", c.BatchSize)}
	}

	size, err := ParseSize(c.Threshold)
	if err != nil {
		return &ValidationError{Field: "threshold", Reason: fmt.Sprintf("malformed size %q", c.Threshold), Err: err}
	}
	c.thresholdBytes = size

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return &ValidationError{Field: "log-format", Reason: fmt.Sprintf("unknown format %q (options: text, json)", c.LogFormat)}
	}

	if c.Verbose && c.Quiet {
		return &ValidationError{Field: "verbose", Reason: "cannot be combined with quiet"}
	}

	if c.ProgressInterval.Duration < 0 {
		return &ValidationError{Field: "progress-interval", Reason: "must not be negative"}
	}

	if c.LogDir != "" {
		absLogDir, err := filepath.Abs(c.LogDir)
		if err != nil {
			return &ValidationError{Field: "log-dir", Reason: "cannot resolve path", Err: err}
		}
		c.LogDir = absLogDir
	}

	return nil
}

func (c *Config) validateDestination() error {
	if c.Destination == "" {
		return &ValidationError{Field: "destination", Reason: "path is required"}
	}

	if c.IsS3Destination() {
		bucket := strings.SplitN(strings.TrimPrefix(c.Destination, s3Scheme), "/", 2)[0]
		if bucket == "" {
			return &ValidationError{Field: "destination", Reason: "S3 URI is missing a bucket name"}
		}
		return nil
	}

	absDest, err := filepath.Abs(c.Destination)
	if err != nil {
		return &ValidationError{Field: "destination", Reason: "cannot resolve path", Err: err}
	}
	c.Destination = absDest

	if info, err := os.Stat(absDest); err == nil {
		if !info.IsDir() {
			return &ValidationError{Field: "destination", Reason: absDest + " exists and is not a directory"}
		}
		return nil
	}

	parent := filepath.Dir(absDest)
	info, err := os.Stat(parent)
	if err != nil {
		return &ValidationError{Field: "destination", Reason: "parent directory " + parent + " is not accessible", Err: err}
	}
	if !info.IsDir() {
		return &ValidationError{Field: "destination", Reason: "parent " + parent + " is not a directory"}
	}
	if err := checkWritable(parent); err != nil {
		return &ValidationError{Field: "destination", Reason: "parent directory " + parent + " is not writable", Err: err}
	}
	return nil
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".split-sync-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ParseSize parses a human size such as "500K", "10MB" or "1g" into bytes.
// Suffixes are binary multiples; a bare number is a byte count.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n, nil
}
