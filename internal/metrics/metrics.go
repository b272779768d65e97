// Package metrics collects per-run Prometheus metrics. Each run owns its
// registry so the result can be written out as a node-exporter textfile
// once the batch is done.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	registry *prometheus.Registry

	filesTotal        *prometheus.CounterVec
	translateDuration *prometheus.HistogramVec
	sourceBytes       prometheus.Histogram
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gtrans_files_total",
				Help: "Number of processed files by outcome",
			},
			[]string{"status"},
		),
		translateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gtrans_translate_duration_seconds",
				Help:    "Time spent translating one file in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 300.0},
			},
			[]string{"service"},
		),
		sourceBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gtrans_source_bytes",
				Help:    "Size of source files in bytes",
				Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
			},
		),
	}
}

// RecordFile counts one file outcome. A nil Collector records nothing.
func (c *Collector) RecordFile(status string) {
	if c == nil {
		return
	}
	c.filesTotal.WithLabelValues(status).Inc()
}

// RecordTranslation observes a successful service call for a file.
func (c *Collector) RecordTranslation(service string, sourceBytes int, d time.Duration) {
	if c == nil {
		return
	}
	if service == "" {
		service = "unknown"
	}
	c.translateDuration.WithLabelValues(service).Observe(d.Seconds())
	c.sourceBytes.Observe(float64(sourceBytes))
}

// WriteTextfile writes the collected metrics in the text exposition format.
// The file is written atomically, as the node exporter expects.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
