// Package metrics records the outcome of a single filter build as Prometheus
// gauges. A batch job has nothing to scrape, so the gauges are written once to
// a node_exporter textfile collector file at the end of the run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mkbloom"

// Build holds the gauges for one build. It uses a private registry so that
// only build metrics end up in the textfile, not Go runtime collectors.
type Build struct {
	registry *prometheus.Registry

	Items           prometheus.Gauge
	InputBytes      prometheus.Gauge
	BitmapBits      prometheus.Gauge
	BitmapBytes     prometheus.Gauge
	HashFunctions   prometheus.Gauge
	SetBits         prometheus.Gauge
	TargetFPRate    prometheus.Gauge
	EstimatedFPRate prometheus.Gauge
	Duration        *prometheus.GaugeVec
	LastSuccess     prometheus.Gauge
}

// NewBuild creates and registers the build gauges.
func NewBuild() *Build {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	b := &Build{
		registry:        prometheus.NewRegistry(),
		Items:           gauge("items", "Number of corpus lines inserted, duplicates included."),
		InputBytes:      gauge("input_bytes", "Size of the corpus in bytes."),
		BitmapBits:      gauge("bitmap_bits", "Bitmap size in bits (m)."),
		BitmapBytes:     gauge("bitmap_bytes", "Size of the bitmap file in bytes."),
		HashFunctions:   gauge("hash_functions", "Number of hash rounds per item (k)."),
		SetBits:         gauge("set_bits", "Number of bits set in the bitmap."),
		TargetFPRate:    gauge("target_false_positive_rate", "Requested false positive rate."),
		EstimatedFPRate: gauge("estimated_false_positive_rate", "False positive rate implied by the bitmap fill ratio."),
		Duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time spent in each build phase.",
		}, []string{"phase"}),
		LastSuccess: gauge("last_success_timestamp_seconds", "Unix time at which the output pair was written."),
	}

	b.registry.MustRegister(
		b.Items, b.InputBytes, b.BitmapBits, b.BitmapBytes, b.HashFunctions,
		b.SetBits, b.TargetFPRate, b.EstimatedFPRate, b.Duration, b.LastSuccess,
	)
	return b
}

// ObservePhase records how long a phase took, starting at start.
func (b *Build) ObservePhase(phase string, start time.Time) {
	b.Duration.WithLabelValues(phase).Set(time.Since(start).Seconds())
}

// Gatherer exposes the registry, mainly for tests.
func (b *Build) Gatherer() prometheus.Gatherer {
	return b.registry
}

// WriteTextfile writes the gauges in the text exposition format. The file is
// replaced atomically.
func (b *Build) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, b.registry)
}
