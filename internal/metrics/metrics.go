// Package metrics holds the per-run Prometheus registry. A batch run has no
// scrape endpoint, so the registry is flushed to a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arca"

// Dispatch outcomes recorded on arca_dispatch_total.
const (
	OutcomeSent      = "sent"
	OutcomeDryRun    = "dry_run"
	OutcomeFailed    = "failed"
	OutcomeNoUpdates = "no_updates"
)

type Recorder struct {
	registry *prometheus.Registry

	FindingsLoaded  prometheus.Counter
	FindingsSkipped prometheus.Counter
	SourceChanges   *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	ReportRisks     prometheus.Gauge
	LastRun         prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		FindingsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_loaded_total",
			Help:      "Valid risk records read from the auditor output.",
		}),
		FindingsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_skipped_total",
			Help:      "Risk records rejected during validation.",
		}),
		SourceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_changes_total",
			Help:      "Watched sources whose fingerprint changed.",
		}, []string{"source"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Notification cycles by outcome.",
		}, []string{"outcome"}),
		ReportRisks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_risks",
			Help:      "total_risks_flagged of the last generated report.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.FindingsLoaded, r.FindingsSkipped, r.SourceChanges, r.Dispatches, r.ReportRisks, r.LastRun)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Finish stamps the run time.
func (r *Recorder) Finish(now time.Time) {
	r.LastRun.Set(float64(now.Unix()))
}

// WriteTextfile writes the registry in text exposition format. An empty path
// is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
