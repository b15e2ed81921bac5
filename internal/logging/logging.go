package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls how the run logger is built.
type Options struct {
	Verbose bool
	Quiet   bool
	Format  string
	Output  io.Writer
}

// New creates the run logger. Verbose enables debug output, quiet keeps
// only warnings and errors.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	switch {
	case opts.Verbose:
		logger.SetLevel(logrus.DebugLevel)
	case opts.Quiet:
		logger.SetLevel(logrus.WarnLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if opts.Format == FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	}

	return logger
}

// JobLogName returns the log file name for the job with the given sequence number.
func JobLogName(seq int) string {
	return fmt.Sprintf("job-%05d.log", seq)
}

// OpenJobLog creates (or truncates) the per-job log file inside dir.
// The directory is created if missing; concurrent callers are safe.
func OpenJobLog(dir string, seq int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, JobLogName(seq)))
	if err != nil {
		return nil, fmt.Errorf("create job log: %w", err)
	}
	return f, nil
}
