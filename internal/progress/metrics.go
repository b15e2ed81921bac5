package progress

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yuya-takeyama/split-sync/internal/plan"
)

var (
	_ prometheus.Collector = new(Metrics)

	unitDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}
)

// Metrics exposes run counters in Prometheus form. It is fed by the
// aggregator's consumer goroutine.
type Metrics struct {
	units        *prometheus.CounterVec
	bytes        prometheus.Counter
	durations    *prometheus.HistogramVec
	plannedUnits prometheus.Gauge
	plannedBytes prometheus.Gauge
	registry     *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "split_sync_units_total",
				Help: "The total number of finished units, partitioned by kind and result.",
			},
			[]string{"kind", "result"},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "split_sync_transferred_bytes_total",
				Help: "The total number of bytes accounted to successful units.",
			},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "split_sync_unit_duration_seconds",
				Help:    "Time spent executing one unit, partitioned by kind.",
				Buckets: unitDurationBuckets,
			},
			[]string{"kind"},
		),
		plannedUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "split_sync_planned_units",
				Help: "The number of units planned for the run.",
			},
		),
		plannedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "split_sync_planned_bytes",
				Help: "The number of bytes discovered for the run.",
			},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m)
	return m
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.units.Describe(ch)
	m.bytes.Describe(ch)
	m.durations.Describe(ch)
	m.plannedUnits.Describe(ch)
	m.plannedBytes.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.units.Collect(ch)
	m.bytes.Collect(ch)
	m.durations.Collect(ch)
	m.plannedUnits.Collect(ch)
	m.plannedBytes.Collect(ch)
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}

func (m *Metrics) setPlanned(units int, bytes int64) {
	m.plannedUnits.Set(float64(units))
	m.plannedBytes.Set(float64(bytes))
}

func (m *Metrics) observe(o Outcome) {
	kind := plan.KindSingle
	if o.Unit != nil {
		kind = o.Unit.Kind()
	}

	result := "completed"
	if !o.Success {
		result = "failed"
	} else {
		m.bytes.Add(float64(o.Bytes))
	}

	m.units.WithLabelValues(string(kind), result).Inc()
	m.durations.WithLabelValues(string(kind)).Observe(o.Elapsed.Seconds())
}
