// Package progress aggregates per-unit outcomes reported by concurrent
// workers into one consistent tally.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/yuya-takeyama/split-sync/internal/plan"
)

// Outcome is the terminal result of executing one unit. Exactly one Outcome
// is reported per unit.
type Outcome struct {
	Unit    plan.Unit
	Success bool
	Bytes   int64
	Elapsed time.Duration
	Err     error
	// LogPath is the per-job log file, empty when job logs are disabled.
	LogPath string
}

// Tally holds the cumulative counters.
type Tally struct {
	Completed int
	Failed    int
	Bytes     int64
}

// Done returns the number of units that have reported.
func (t Tally) Done() int {
	return t.Completed + t.Failed
}

// Snapshot is a read-only view of the progress for display.
type Snapshot struct {
	Tally
	TotalUnits int
	TotalBytes int64
	Elapsed    time.Duration
}

// Percent returns the share of reported units in the range 0-100.
func (s Snapshot) Percent() float64 {
	if s.TotalUnits == 0 {
		return 100
	}
	return float64(s.Done()) * 100 / float64(s.TotalUnits)
}

// Options configures an Aggregator.
type Options struct {
	Logger  logrus.FieldLogger
	Metrics *Metrics
	// Buffer is the capacity of the outcome channel.
	Buffer int
}

// Aggregator is the single point of truth for run progress. Outcomes are
// sent over a channel to one consumer goroutine, which is the only writer of
// the tally.
type Aggregator struct {
	totalUnits int
	totalBytes int64
	start      time.Time
	logger     logrus.FieldLogger
	metrics    *Metrics

	outcomes  chan Outcome
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	tally    Tally
	failures []Outcome
}

// NewAggregator starts an aggregator expecting totalUnits units carrying
// totalBytes bytes.
func NewAggregator(totalUnits int, totalBytes int64, opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	a := &Aggregator{
		totalUnits: totalUnits,
		totalBytes: totalBytes,
		start:      time.Now(),
		logger:     logger,
		metrics:    opts.Metrics,
		outcomes:   make(chan Outcome, buffer),
		done:       make(chan struct{}),
	}
	if a.metrics != nil {
		a.metrics.setPlanned(totalUnits, totalBytes)
	}

	go a.consume()
	return a
}

// Report hands an outcome to the aggregator. It must not be called after
// Close.
func (a *Aggregator) Report(o Outcome) {
	a.outcomes <- o
}

func (a *Aggregator) consume() {
	defer close(a.done)

	for o := range a.outcomes {
		a.apply(o)
	}
}

func (a *Aggregator) apply(o Outcome) {
	a.mu.Lock()
	if o.Success {
		a.tally.Completed++
		a.tally.Bytes += o.Bytes
	} else {
		a.tally.Failed++
		a.failures = append(a.failures, o)
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.observe(o)
	}
}

// Snapshot returns the current progress. It may lag behind outcomes still
// queued in the channel.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		Tally:      a.tally,
		TotalUnits: a.totalUnits,
		TotalBytes: a.totalBytes,
		Elapsed:    time.Since(a.start),
	}
}

// Close drains every queued outcome and returns the final tally. It is safe
// to call more than once.
func (a *Aggregator) Close() Tally {
	a.closeOnce.Do(func() { close(a.outcomes) })
	<-a.done

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tally
}

// Failures returns the failed outcomes in the order they were applied.
func (a *Aggregator) Failures() []Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Outcome, len(a.failures))
	copy(out, a.failures)
	return out
}

// StartReporter logs a progress line every interval until ctx is done or
// the returned stop function is called. A non-positive interval disables
// reporting.
func (a *Aggregator) StartReporter(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.logSnapshot(a.Snapshot())
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func (a *Aggregator) logSnapshot(s Snapshot) {
	a.logger.WithFields(logrus.Fields{
		"completed": s.Completed,
		"failed":    s.Failed,
		"total":     s.TotalUnits,
	}).Infof("progress %.1f%% (%s / %s)",
		s.Percent(), units.BytesSize(float64(s.Bytes)), units.BytesSize(float64(s.TotalBytes)))
}
