// Package runner wires one workflow invocation end to end: it spawns the
// agent through the supervisor, feeds every output line through the
// classifier into the phase aggregator and service tracker, drives the
// progress display, extracts the payload once the agent exits and
// assembles the final report.
//
// Exactly one goroutine, the supervisor's reader, mutates run state while
// the agent runs. The display converts that state into an immutable Frame
// once per render tick, and only when a line has changed it since the
// previous tick; consuming a line never copies the phase tree.
package runner

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/shepherd/internal/classify"
	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/display"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/history"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/metrics"
	"github.com/Iron-Ham/shepherd/internal/phase"
	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/supervisor"
	"github.com/Iron-Ham/shepherd/internal/tracker"
	"github.com/Iron-Ham/shepherd/internal/transcript"
	"github.com/Iron-Ham/shepherd/internal/workflow"
)

// gatheredDetail is the detail recorded for targets completed by the
// payload rather than by a status marker.
const gatheredDetail = "data gathered"

// Invocation is one request to run a workflow over targets.
type Invocation struct {
	Workflow *workflow.Definition
	Targets  []string
	// Args are workflow arguments by name; defaults fill the gaps.
	Args map[string]string
}

// Runner executes invocations with one agent handle. The handle is owned by
// the caller, which closes it when the Runner is no longer needed.
type Runner struct {
	agent   *supervisor.Agent
	cfg     *config.Config
	logger  *logging.Logger
	metrics metrics.Recorder
	history *history.Store
	output  io.Writer
	live    display.LiveOptions
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithHistory stores every final report in h.
func WithHistory(h *history.Store) Option {
	return func(r *Runner) { r.history = h }
}

// WithDisplay draws progress to w. Without it the run is silent.
func WithDisplay(w io.Writer, opts display.LiveOptions) Option {
	return func(r *Runner) {
		r.output = w
		r.live = opts
	}
}

// New creates a Runner.
func New(agent *supervisor.Agent, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		agent:   agent,
		cfg:     cfg,
		logger:  logging.NopLogger(),
		metrics: metrics.Nop(),
		live:    display.LiveOptions{Options: display.Options{Verbosity: display.Quiet}},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes inv and returns its final report together with the run's
// terminal error. Invalid invocations fail before anything is spawned and
// return a nil report. Once the transcript log is open a report is always
// returned, and the log always ends with its footer.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*report.Report, error) {
	def := inv.Workflow
	if def == nil {
		return nil, errors.NewValidationError("workflow is required").WithField("workflow")
	}
	if len(inv.Targets) == 0 {
		return nil, errors.NewWorkflowError(def.Name, "no targets given", errors.ErrNoTargets)
	}
	prompt, err := def.BuildPrompt(r.cfg.Organization, inv.Targets, inv.Args)
	if err != nil {
		return nil, err
	}
	var extractor *extract.Extractor
	if def.ExpectsPayload {
		schema, err := def.CompileSchema()
		if err != nil {
			return nil, errors.NewWorkflowError(def.Name, "invalid payload schema", err)
		}
		extractor = extract.New(extract.WithSchema(schema))
	}

	runID := uuid.NewString()
	started := r.now()
	logger := r.logger.WithRun(runID).WithWorkflow(def.Name)
	command := r.agent.CommandLine(prompt)

	logPath := transcript.Path(r.cfg.Paths.ResolveLogDir(), def.LogPrefix, inv.Targets, started)
	tlog, err := transcript.Create(logPath, transcript.Header{
		RunID:     runID,
		Workflow:  def.Name,
		Targets:   inv.Targets,
		Command:   command,
		WorkDir:   r.cfg.Run.WorkDir,
		StartedAt: started,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open transcript log")
	}
	logPath = tlog.Path()
	defer func() {
		if err := tlog.Close(); err != nil {
			logger.Error("transcript log close failed", "path", logPath, "error", err)
		}
	}()
	logger.Info("run started", "targets", inv.Targets, "log", logPath,
		"agent", r.agent.Path(), "pty", r.agent.UsesPTY())

	st := newRunState(def.Name, inv.Targets, started, r.cfg, logger, r.metrics, command)

	g, stopDisplay := r.startDisplay(ctx, st)

	sup := supervisor.New(r.agent, logger)
	res, runErr := sup.Run(ctx, supervisor.Spec{
		Prompt:         prompt,
		Dir:            r.cfg.Run.WorkDir,
		Timeout:        r.cfg.Run.Timeout(),
		GracePeriod:    r.cfg.Run.GracePeriod(),
		SilenceWarning: r.cfg.Run.SilenceWarning(),
	}, func(line string, at time.Time) {
		if err := tlog.WriteLine(line); err != nil {
			st.logWriteFailed(err)
		}
		st.consume(line, at)
	})

	finished := r.now()
	st.finish(res.ExitCode, finished)
	exitCode, _ := st.transcript.ExitCode()

	var ext *extract.Result
	if extractor != nil && !errors.Is(runErr, errors.ErrSpawnFailed) {
		ext = extractor.Extract(st.transcript.Text())
		if ext.OK() {
			st.reconcile(def, ext.Payload, finished)
			if err := tlog.WritePayload(ext.Payload); err != nil {
				logger.Error("write payload to log failed", "error", err)
			}
			logger.Info("payload extracted", "strategy", ext.Strategy, "repaired", ext.Repaired)
		} else {
			if err := tlog.WriteFailure(ext.Failure); err != nil {
				logger.Error("write extraction failure to log failed", "error", err)
			}
			logger.Warn("payload extraction failed", "kind", ext.Failure.Kind, "attempted", ext.Failure.Attempted)
			if runErr == nil {
				runErr = ext.Err()
			}
		}
	}

	stopDisplay()
	if err := g.Wait(); err != nil {
		logger.Warn("progress display failed", "error", err)
	}

	rep := report.Build(report.Input{
		RunID:           runID,
		Workflow:        def.Name,
		LogPath:         logPath,
		StartedAt:       started,
		Duration:        finished.Sub(started),
		Services:        st.tracker.Snapshot(),
		Phases:          st.phases.Snapshot(),
		ProcessExitCode: exitCode,
		Lines:           st.transcript.Len(),
		SilenceWarnings: res.SilenceWarnings,
		Extraction:      ext,
		Err:             runErr,
	})

	if err := tlog.WriteFooter(transcript.Footer{
		ExitCode:   exitCode,
		Reason:     rep.Reason,
		Duration:   finished.Sub(started),
		FinishedAt: finished,
	}); err != nil {
		logger.Error("write log footer failed", "error", err)
	}

	r.metrics.ObserveRun(rep)
	if r.history != nil {
		// The caller's context may already be cancelled; the report must
		// still be recorded.
		if err := r.history.Save(context.WithoutCancel(ctx), rep); err != nil {
			logger.Warn("failed to record run history", "error", err)
		}
	}

	logger.Info("run finished", "reason", rep.Reason, "exit_code", rep.ExitCode(),
		"success", rep.Counts.Success, "error", rep.Counts.Error, "unknown", rep.Counts.Unknown)
	return rep, runErr
}

// startDisplay runs the progress display until stopped. The display has
// its own context so it can draw the final frame after the run context is
// cancelled.
func (r *Runner) startDisplay(ctx context.Context, st *runState) (*errgroup.Group, context.CancelFunc) {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(dctx)
	if r.output == nil || r.live.Verbosity == display.Quiet {
		return g, cancel
	}
	g.Go(func() error {
		return display.Run(gctx, r.output, st, r.live)
	})
	return g, cancel
}

// runState is everything derived from one run's output. Only the reader
// goroutine calls consume; Frame may be called from any goroutine. mu is
// held while a line is folded in and while a tick takes its snapshot.
type runState struct {
	workflow   string
	started    time.Time
	logger     *logging.Logger
	metrics    metrics.Recorder
	classifier *classify.Classifier
	bus        *event.Bus
	phases     *phase.Aggregator
	tracker    *tracker.Tracker
	narrative  *display.Narrative
	transcript *transcript.Transcript

	// at is the arrival time of the line being consumed; bus handlers run
	// synchronously within consume.
	at time.Time

	mu    sync.Mutex
	dirty bool
	frame display.Frame

	logWriteErrs int
}

func newRunState(workflowName string, targets []string, started time.Time, cfg *config.Config, logger *logging.Logger, rec metrics.Recorder, command []string) *runState {
	st := &runState{
		workflow:   workflowName,
		started:    started,
		logger:     logger,
		metrics:    rec,
		classifier: classify.New(),
		bus:        event.NewBus(logger),
		phases:     phase.New(),
		tracker: tracker.New(targets,
			tracker.WithLogger(logger),
			tracker.WithMaxLateMarkers(cfg.Run.MaxLateMarkers)),
		narrative:  display.NewNarrative(cfg.Display.NarrativeLines),
		transcript: transcript.New(command, started),
	}

	st.bus.SubscribeAll(func(ev event.Event) {
		st.metrics.ObserveEvent(ev.EventType())
		st.phases.Apply(ev, st.at)
		st.tracker.Apply(ev, st.at)
	})
	st.bus.Subscribe(event.TypeNarrative, func(ev event.Event) {
		if n, ok := ev.(event.RawNarrative); ok {
			st.narrative.Push(n.Text)
		}
	})
	st.dirty = true
	return st
}

// consume folds one output line into the run state.
func (st *runState) consume(line string, at time.Time) {
	st.transcript.Append(line, at)
	st.metrics.ObserveLine()
	ev, rule := st.classifier.Match(line)
	if ev == nil {
		return
	}
	if ev.EventType() != event.TypeNarrative {
		st.logger.Debug("line classified", "rule", rule, "event", ev.EventType())
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.at = at
	st.bus.Publish(ev)
	st.dirty = true
}

func (st *runState) logWriteFailed(err error) {
	st.logWriteErrs++
	if st.logWriteErrs == 1 {
		st.logger.Error("transcript log write failed", "error", err)
	}
}

// finish closes the running phase once the agent has exited.
func (st *runState) finish(exitCode int, at time.Time) {
	st.transcript.Finish(exitCode)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.phases.Finish(at)
	st.dirty = true
}

// reconcile completes declared targets that the payload reports on but
// that never reached a terminal state through status markers.
func (st *runState) reconcile(def *workflow.Definition, payload map[string]any, at time.Time) {
	gathered, err := def.Gathered(payload)
	if err != nil {
		st.logger.Warn("payload targets could not be decoded", "error", err)
		return
	}
	if len(gathered) == 0 {
		return
	}
	byName := make(map[string]workflow.TargetData, len(gathered))
	for name, data := range gathered {
		byName[tracker.Normalize(name)] = data
	}

	for _, e := range st.tracker.Snapshot().Entries {
		if e.State.Terminal() {
			continue
		}
		data, ok := byName[tracker.Normalize(e.Name)]
		if !ok {
			continue
		}
		detail := gatheredDetail
		if data.Summary != "" {
			detail = data.Summary
		}
		st.mu.Lock()
		st.tracker.Observe(e.Name, tracker.Success, detail, at)
		st.dirty = true
		st.mu.Unlock()
	}
}

// Frame implements display.Source. The snapshot is rebuilt only when a
// line has been consumed since the previous call.
func (st *runState) Frame() display.Frame {
	st.mu.Lock()
	if st.dirty {
		st.frame = display.Frame{
			Workflow:  st.workflow,
			StartedAt: st.started,
			Phases:    st.phases.Snapshot(),
			Services:  st.tracker.Snapshot(),
			Narrative: st.narrative.Lines(),
		}
		st.dirty = false
	}
	f := st.frame
	st.mu.Unlock()

	f.Now = time.Now()
	return f
}
