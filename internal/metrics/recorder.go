// Package metrics records run metrics and exports them as a Prometheus
// textfile.
package metrics

import "github.com/Iron-Ham/shepherd/internal/report"

// Recorder receives run metrics.
type Recorder interface {
	// ObserveLine counts one transcript line.
	ObserveLine()

	// ObserveEvent counts one classified event by kind.
	ObserveEvent(kind string)

	// ObserveRun records the final report of a run.
	ObserveRun(r *report.Report)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveLine does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLine() {}

// ObserveEvent does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveEvent(_ string) {}

// ObserveRun does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRun(_ *report.Report) {}
