// Package metrics exposes the result of a capability check as Prometheus
// gauges, for node exporter textfile collection.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinyrange/cpucheck/internal/x86/check"
)

// Metrics describes the last validation run.
type Metrics struct {
	reg *prometheus.Registry

	// Passed is 1 when the processor can run the build.
	Passed prometheus.Gauge

	Level         prometheus.Gauge
	RequiredLevel prometheus.Gauge

	// Missing has one series per required capability the processor lacks.
	Missing *prometheus.GaugeVec

	Remedy  *prometheus.GaugeVec
	Erratum *prometheus.GaugeVec

	// Info carries the processor identity as labels.
	Info *prometheus.GaugeVec

	Duration prometheus.Histogram
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Passed: f.NewGauge(prometheus.GaugeOpts{
			Name: "cpucheck_passed",
			Help: "Whether the processor satisfies the build requirements (1) or not (0)",
		}),
		Level: f.NewGauge(prometheus.GaugeOpts{
			Name: "cpucheck_level",
			Help: "Processor level observed by the probe (3, 4, 5, 6, 15 or 64)",
		}),
		RequiredLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "cpucheck_required_level",
			Help: "Minimum processor level of the build",
		}),
		Missing: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cpucheck_missing_capability",
			Help: "Required capabilities not reported by the processor after remediation",
		}, []string{"capability", "word"}),
		Remedy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cpucheck_remedy_applied",
			Help: "Vendor remedy that ran during the last validation",
		}, []string{"remedy"}),
		Erratum: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cpucheck_erratum",
			Help: "Erratum that vetoed the processor",
		}, []string{"erratum"}),
		Info: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cpucheck_cpu_info",
			Help: "Identity of the probed processor",
		}, []string{"vendor", "family", "model"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cpucheck_validation_duration_seconds",
			Help:    "Duration of a validation run",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
		}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe records one validation run. Series of earlier runs are dropped.
func (m *Metrics) Observe(o check.Outcome, s check.State, d time.Duration) {
	if m == nil {
		return
	}
	m.Passed.Set(boolFloat(o.Passed))
	m.Level.Set(float64(o.Level))
	m.RequiredLevel.Set(float64(o.RequiredLevel))

	m.Missing.Reset()
	if o.Missing != nil {
		for _, f := range o.Missing.Features() {
			m.Missing.WithLabelValues(f.String(), fmt.Sprint(int(f.Word()))).Set(1)
		}
	}
	m.Remedy.Reset()
	if o.Remedy != "" {
		m.Remedy.WithLabelValues(o.Remedy).Set(1)
	}
	m.Erratum.Reset()
	if o.Erratum != "" {
		m.Erratum.WithLabelValues(o.Erratum).Set(1)
	}

	m.Info.Reset()
	m.Info.WithLabelValues(s.VendorString(), fmt.Sprint(s.Family), fmt.Sprint(s.Model)).Set(1)
	m.Duration.Observe(d.Seconds())
}

// WriteTextfile writes the metrics in the text exposition format, atomically
// replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
