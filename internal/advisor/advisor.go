// Package advisor runs the analysis pipeline: live readings and historical
// baselines go in, deviations and candidate actions come out, and the
// action lifecycle, approval channel and learning store are driven from
// there.
//
// One pipeline run at a time is enforced by a scheduler.RunGuard. Triggers
// arrive from the periodic timer, the MQTT run flag and the HTTP API.
//
// Usage:
//
//	adv := advisor.New(advisor.Deps{...})
//	adv.Run(ctx, "timer")
//	status := adv.Status()
//
// Thread Safety: all exported methods are safe for concurrent use.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/approval"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/metrics"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
	"github.com/nerrad567/gray-logic-advisor/internal/report"
	"github.com/nerrad567/gray-logic-advisor/internal/scheduler"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
	"github.com/nerrad567/gray-logic-advisor/internal/synth"
)

// ErrPipelinePanic wraps a panic recovered from a pipeline run.
var ErrPipelinePanic = errors.New("advisor: pipeline panicked")

// Logger defines the logging interface used by the advisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LiveSource provides the current readings and the history series behind
// each metric.
type LiveSource interface {
	Snapshot() readings.Readings
	SeriesIDs() map[string]string
}

// BaselineSource builds baselines from history.
type BaselineSource interface {
	Baselines(ctx context.Context, now time.Time, seriesByMetric map[string]string) map[string]series.Aggregate
}

// Sink receives write-back points for dashboards.
type Sink interface {
	WriteAggregate(seriesID string, values map[string]*float64, ts time.Time)
	WriteDeviation(category, kind, severity string, value, baseline float64, ts time.Time)
	WriteRunSummary(siteID string, deviations, suggested, executed int, duration time.Duration)
}

// MQTTClient is the subset of the MQTT client used for the run flag,
// status and report topics.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Deps holds the advisor's collaborators. Baselines, Approval, Channel,
// Sink, Metrics and MQTT are optional.
type Deps struct {
	Site       string
	Location   *time.Location
	Store      store.Store
	Live       LiveSource
	Baselines  BaselineSource
	Detector   *deviation.Detector
	Synth      *synth.Synthesizer
	Actions    *action.Manager
	Dispatcher *action.Dispatcher
	Learning   *learning.Store
	Approval   *approval.Adapter
	Channel    approval.Channel
	Renderer   *report.Renderer
	Sink       Sink
	Metrics    *metrics.Metrics
	MQTT       MQTTClient
	// RunFlagTopic overrides mqtt.Topics{}.RunFlag().
	RunFlagTopic string
	Logger       Logger
}

// RunSummary counts what one run produced.
type RunSummary struct {
	Deviations    int `json:"deviations"`
	Candidates    int `json:"candidates"`
	LiveRule      int `json:"liveRule"`
	Deviation     int `json:"deviation"`
	Suggested     int `json:"suggested"`
	AutoApproved  int `json:"autoApproved"`
	Executed      int `json:"executed"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	SentForReview int `json:"sentForReview"`
}

// Status describes the advisor's run state for the status API.
type Status struct {
	Running        bool        `json:"running"`
	Runs           uint64      `json:"runs"`
	SkippedRuns    uint64      `json:"skippedRuns"`
	LastTrigger    string      `json:"lastTrigger,omitempty"`
	LastRunAt      *time.Time  `json:"lastRunAt,omitempty"`
	LastDurationMs int64       `json:"lastDurationMs"`
	LastError      string      `json:"lastError,omitempty"`
	LastErrorAt    *time.Time  `json:"lastErrorAt,omitempty"`
	LastSummary    *RunSummary `json:"lastSummary,omitempty"`
}

// Advisor orchestrates analysis runs.
type Advisor struct {
	deps   Deps
	guard  *scheduler.RunGuard
	logger Logger
	now    func() time.Time

	sessMu  sync.Mutex
	session *approval.Session

	mu       sync.RWMutex
	status   Status
	snapshot report.Snapshot
}

// New creates an Advisor.
func New(deps Deps) *Advisor {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.RunFlagTopic == "" {
		deps.RunFlagTopic = mqtt.Topics{}.RunFlag()
	}
	return &Advisor{
		deps:   deps,
		guard:  scheduler.NewRunGuard(deps.Logger),
		logger: deps.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (a *Advisor) SetClock(now func() time.Time) { a.now = now }

// Run executes one pipeline run on the calling goroutine. It returns false
// without running when another run is in progress.
func (a *Advisor) Run(ctx context.Context, trigger string) bool {
	ok := a.guard.TryRun(trigger, func() { a.run(ctx, trigger) })
	if !ok {
		a.deps.Metrics.RunSkipped()
	}
	return ok
}

// Start is Run on a new goroutine. The single-flight lock is taken before
// Start returns.
func (a *Advisor) Start(ctx context.Context, trigger string) bool {
	ok := a.guard.TryGo(trigger, func() { a.run(ctx, trigger) })
	if !ok {
		a.deps.Metrics.RunSkipped()
	}
	return ok
}

// Status returns the current run state.
func (a *Advisor) Status() Status {
	a.mu.RLock()
	st := a.status
	a.mu.RUnlock()
	st.Running = a.guard.Running()
	st.SkippedRuns = a.guard.Skipped()
	return st
}

// Snapshot returns the snapshot written by the latest run.
func (a *Advisor) Snapshot() report.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// runState carries partial results so finalisation can persist whatever
// the pipeline reached before failing.
type runState struct {
	live       readings.Readings
	baselines  map[string]series.Aggregate
	deviations []deviation.Deviation
	stats      map[string]learning.KeyStats
	summary    RunSummary
}

func (a *Advisor) run(ctx context.Context, trigger string) {
	start := a.now()
	rs := &runState{}

	a.logger.Info("analysis run started", "trigger", trigger)
	err := a.safePipeline(ctx, start, rs)
	a.finalise(ctx, trigger, start, rs, err)
}

// safePipeline is the outermost boundary: a panic anywhere in the
// pipeline becomes the run's error.
func (a *Advisor) safePipeline(ctx context.Context, now time.Time, rs *runState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()
	return a.pipeline(ctx, now, rs)
}

func (a *Advisor) pipeline(ctx context.Context, now time.Time, rs *runState) error {
	rs.live = a.deps.Live.Snapshot()

	if a.deps.Baselines != nil {
		rs.baselines = a.deps.Baselines.Baselines(ctx, now, a.deps.Live.SeriesIDs())
	}
	a.writeAggregates(now, rs.baselines)

	rs.deviations = a.deps.Detector.Detect(now, rs.live, rs.baselines)
	rs.summary.Deviations = len(rs.deviations)
	a.deps.Metrics.Deviations(rs.deviations)
	a.writeDeviations(now, rs.deviations)

	if a.deps.Learning != nil {
		rs.stats = a.deps.Learning.Stats()
	}

	res := a.deps.Synth.Synthesize(ctx, synth.Input{
		Now:        now,
		Live:       rs.live,
		Aggregates: rs.baselines,
		Deviations: rs.deviations,
		Stats:      rs.stats,
	})
	rs.summary.Candidates = len(res.Actions)
	rs.summary.LiveRule = res.LiveRule
	rs.summary.Deviation = res.Deviation
	rs.summary.Suggested = res.Suggested

	stored := a.deps.Actions.Ingest(ctx, res.Actions)
	rs.summary.AutoApproved = len(a.deps.Actions.AutoApprove(ctx))

	if a.deps.Dispatcher != nil {
		d := a.deps.Dispatcher.Dispatch(ctx)
		rs.summary.Executed = d.Executed
		rs.summary.Skipped = d.Skipped
		rs.summary.Failed = d.Failed
	}

	sent, err := a.sendForReview(ctx, stored)
	rs.summary.SentForReview = sent
	return err
}

// sendForReview sends the proposed actions that still need a decision and
// are not already part of the open batch.
func (a *Advisor) sendForReview(ctx context.Context, stored []action.Action) (int, error) {
	if a.deps.Approval == nil {
		return 0, nil
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()

	sess, err := a.sessionLocked(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(stored))
	var pending []action.Action
	for _, s := range stored {
		cur, ok := a.deps.Actions.Get(s.ID)
		if !ok || seen[cur.ID] || cur.Status != action.StatusProposed || !cur.RequiresApproval || sess.InBatch(cur.ID) {
			continue
		}
		seen[cur.ID] = true
		pending = append(pending, cur)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := a.deps.Approval.SendBatch(ctx, sess, pending); err != nil {
		return 0, err
	}
	if err := approval.SaveSession(ctx, a.deps.Store, sess); err != nil {
		a.logger.Warn("failed to save approval session", "error", err)
	}
	return len(pending), nil
}

// HandleInbound applies one operator message to the current session.
func (a *Advisor) HandleInbound(ctx context.Context, in approval.Inbound) approval.Result {
	if a.deps.Approval == nil {
		return approval.Result{}
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()

	sess, err := a.sessionLocked(ctx)
	if err != nil {
		a.logger.Error("failed to load approval session", "error", err)
		return approval.Result{}
	}

	res := a.deps.Approval.Handle(ctx, sess, in)
	if res.Handled {
		if err := approval.SaveSession(ctx, a.deps.Store, sess); err != nil {
			a.logger.Warn("failed to save approval session", "error", err)
		}
	}
	return res
}

func (a *Advisor) sessionLocked(ctx context.Context) (*approval.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	sess, err := approval.LoadSession(ctx, a.deps.Store)
	if err != nil {
		return nil, err
	}
	a.session = sess
	return sess, nil
}

// finalise always runs: it persists the action list and the latest
// snapshot and records the run outcome.
func (a *Advisor) finalise(ctx context.Context, trigger string, start time.Time, rs *runState, runErr error) {
	a.deps.Actions.Persist(ctx)

	snap := report.Snapshot{
		GeneratedAt: start,
		Readings:    rs.live.Map(),
		Aggregates:  rs.baselines,
		Deviations:  rs.deviations,
		Counts:      report.CountActions(a.deps.Actions.Actions()),
		Stats:       rs.stats,
	}
	if runErr != nil {
		snap.LastError = runErr.Error()
	}
	if err := a.deps.Store.Save(ctx, store.KeySnapshot, snap); err != nil {
		a.logger.Error("failed to persist snapshot", "error", err)
	}

	duration := a.now().Sub(start)
	if a.deps.Sink != nil {
		a.deps.Sink.WriteRunSummary(a.deps.Site, rs.summary.Deviations, rs.summary.Suggested, rs.summary.Executed, duration)
	}
	a.deps.Metrics.RunFinished(duration, runErr)

	a.mu.Lock()
	summary := rs.summary
	a.status.Runs++
	a.status.LastTrigger = trigger
	a.status.LastRunAt = &start
	a.status.LastDurationMs = duration.Milliseconds()
	a.status.LastSummary = &summary
	a.status.LastError = ""
	if runErr != nil {
		at := a.now()
		a.status.LastError = runErr.Error()
		a.status.LastErrorAt = &at
	}
	a.snapshot = snap
	a.mu.Unlock()

	if runErr != nil {
		a.logger.Error("analysis run failed", "trigger", trigger, "error", runErr)
	} else {
		a.logger.Info("analysis run complete",
			"trigger", trigger,
			"deviations", summary.Deviations,
			"candidates", summary.Candidates,
			"executed", summary.Executed,
			"sent_for_review", summary.SentForReview,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func (a *Advisor) writeAggregates(now time.Time, baselines map[string]series.Aggregate) {
	if a.deps.Sink == nil || len(baselines) == 0 {
		return
	}
	ids := a.deps.Live.SeriesIDs()
	for metric, agg := range baselines {
		id := ids[metric]
		if id == "" {
			id = metric
		}
		a.deps.Sink.WriteAggregate(id, agg.Fields(), now)
	}
}

func (a *Advisor) writeDeviations(now time.Time, devs []deviation.Deviation) {
	if a.deps.Sink == nil {
		return
	}
	for _, d := range devs {
		a.deps.Sink.WriteDeviation(d.Category, d.Type, string(d.Severity), d.Value, d.Baseline, now)
	}
}
