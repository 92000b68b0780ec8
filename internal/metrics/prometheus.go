package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/report"
)

// Extraction outcome labels used when no strategy succeeded.
const (
	ExtractionFailed = extract.KindExtractionFailed
	SchemaInvalid    = extract.KindSchemaInvalid
)

// PrometheusRecorder implements Recorder on a private registry so a run
// never mixes with process-global collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	linesTotal      prometheus.Counter
	eventsTotal     *prometheus.CounterVec
	silenceTotal    prometheus.Counter
	runsTotal       *prometheus.CounterVec
	targetsTotal    *prometheus.CounterVec
	extractionTotal *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		linesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shepherd_lines_total",
				Help: "Total number of transcript lines read from the agent",
			},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shepherd_events_total",
				Help: "Total number of classified events by kind",
			},
			[]string{"kind"},
		),
		silenceTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shepherd_silence_warnings_total",
				Help: "Total number of silence warnings raised while waiting for output",
			},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shepherd_runs_total",
				Help: "Total number of runs by workflow and terminal reason",
			},
			[]string{"workflow", "reason"},
		),
		targetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shepherd_targets_total",
				Help: "Total number of targets by workflow and final outcome",
			},
			[]string{"workflow", "outcome"},
		),
		extractionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shepherd_extractions_total",
				Help: "Total number of payload extractions by workflow and winning strategy or failure kind",
			},
			[]string{"workflow", "result"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shepherd_run_duration_seconds",
				Help:    "Duration of runs in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"workflow"},
		),
	}
}

// Registry exposes the recorder's registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveLine counts one transcript line.
func (p *PrometheusRecorder) ObserveLine() {
	p.linesTotal.Inc()
}

// ObserveEvent counts one classified event by kind.
func (p *PrometheusRecorder) ObserveEvent(kind string) {
	p.eventsTotal.WithLabelValues(kind).Inc()
}

// ObserveRun records the run with its targets, silence warnings and
// extraction outcome.
func (p *PrometheusRecorder) ObserveRun(r *report.Report) {
	if r == nil {
		return
	}
	p.runsTotal.WithLabelValues(r.Workflow, r.Reason).Inc()
	p.runDuration.WithLabelValues(r.Workflow).Observe(r.DurationSeconds)
	p.silenceTotal.Add(float64(r.SilenceWarnings))

	for _, t := range r.Targets {
		p.targetsTotal.WithLabelValues(r.Workflow, t.Outcome).Inc()
	}

	if x := r.Extraction; x != nil {
		result := x.Strategy
		if x.Failure != nil {
			result = x.Failure.Kind
		}
		p.extractionTotal.WithLabelValues(r.Workflow, result).Inc()
	}
}

// WriteTextfile writes all metrics in the Prometheus text format for the
// node_exporter textfile collector. The write is atomic.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
