package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/observability"
)

// Reasons reported when a run ends without sending.
const (
	ReasonBelowThreshold = "Level below threshold"
	ReasonCooldown       = "Cooldown active"
	ReasonNoSubscribers  = "No subscriptions to notify"
)

// State is a step of an alert run.
type State string

const (
	StateIdle           State = "idle"
	StateEvaluating     State = "evaluating"
	StateBelowThreshold State = "below_threshold"
	StateCooling        State = "cooling"
	StateDispatching    State = "dispatching"
	StateDone           State = "done"
)

// Request triggers one run. An empty Station uses the orchestrator's default.
type Request struct {
	Station string
}

// Result summarises a completed run.
type Result struct {
	Outcome        domain.Outcome
	Station        domain.Station
	AlertSent      bool
	CurrentLevel   float64
	Threshold      float64
	MeasuredAt     time.Time
	Reason         string
	CooldownHours  float64 // set on the cooldown path
	HoursRemaining float64 // set on the cooldown path
	Summary        *domain.Summary
	EvaluatedAt    time.Time
}

// Options configure an Orchestrator. Events and Reserver are optional.
type Options struct {
	DefaultStation string
	RunTimeout     time.Duration
	Events         EventSink
	Reserver       Reserver
}

// Orchestrator runs evaluate, gate and dispatch for one trigger.
type Orchestrator struct {
	evaluator  *Evaluator
	gate       *Gate
	dispatcher Dispatcher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options
}

// NewOrchestrator creates an Orchestrator from its stages and observability.
func NewOrchestrator(e *Evaluator, g *Gate, d Dispatcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Orchestrator {
	return &Orchestrator{
		evaluator:  e,
		gate:       g,
		dispatcher: d,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// run carries the per-trigger state through the steps of Run.
type run struct {
	logger *slog.Logger
	state  State
	result Result
}

func (r *run) enter(s State) {
	r.logger.Debug("alert state", "from", r.state, "to", s)
	r.state = s
}

// Run evaluates the station's latest level and, when it meets the threshold and
// the cooldown allows, dispatches the water-level alert. Errors are either a
// *domain.NotFoundError (nothing to evaluate) or a dispatch failure; every
// other branch ends in a Result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	now := o.clock.Now()
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	ref := req.Station
	if ref == "" {
		ref = o.opts.DefaultStation
	}

	r := &run{logger: o.logger.With("station", ref), state: StateIdle}
	r.result.EvaluatedAt = now

	err := o.run(ctx, r, ref, now)
	r.enter(StateDone)

	outcome := r.result.Outcome
	if err != nil {
		outcome = domain.OutcomeFailed
		r.result.Outcome = outcome
		r.logger.Error("alert run failed", "error", err)
	}
	o.metrics.AlertRuns.WithLabelValues(string(outcome)).Inc()
	o.metrics.AlertRunDuration.Observe(o.clock.Since(now).Seconds())
	o.publish(ctx, r.result, ref, err)

	if err != nil {
		return Result{}, err
	}
	return r.result, nil
}

func (o *Orchestrator) run(ctx context.Context, r *run, ref string, now time.Time) error {
	// Missing delivery credentials abort the run before any data access.
	if rc, ok := o.dispatcher.(readyChecker); ok {
		if err := rc.Ready(); err != nil {
			return err
		}
	}

	r.enter(StateEvaluating)
	tr, err := o.evaluator.Evaluate(ctx, ref)
	if err != nil {
		return err
	}

	r.result.Station = tr.Station
	r.result.CurrentLevel = tr.CurrentValue
	r.result.Threshold = tr.Threshold
	r.result.MeasuredAt = tr.MeasuredAt
	o.metrics.CurrentLevel.WithLabelValues(tr.Station.Name).Set(tr.CurrentValue)
	r.logger.Info("threshold evaluated", "level_cm", tr.CurrentValue, "threshold_cm", tr.Threshold, "met", tr.Met)

	if !tr.Met {
		r.enter(StateBelowThreshold)
		r.result.Outcome = domain.OutcomeBelowThreshold
		r.result.Reason = ReasonBelowThreshold
		return nil
	}

	category := domain.CategoryWaterLevel
	decision, err := o.gate.Check(ctx, category, now)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		o.cooling(r, decision.Remaining)
		return nil
	}

	token, ok := o.reserve(ctx, r, category)
	if !ok {
		return nil
	}

	r.enter(StateDispatching)
	summary, err := o.dispatcher.Dispatch(ctx, domain.NewWaterLevelPayload(tr))
	if err != nil || summary.Sent == 0 {
		o.release(ctx, r, category, token)
	}
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	r.result.Summary = &summary
	if summary.Total == 0 {
		r.result.Outcome = domain.OutcomeNoSubscribers
		r.result.Reason = ReasonNoSubscribers
		return nil
	}
	r.result.Outcome = domain.OutcomeDispatched
	r.result.AlertSent = true
	r.logger.Info("alert dispatched", "total", summary.Total, "sent", summary.Sent, "failed", summary.Failed)
	return nil
}

func (o *Orchestrator) cooling(r *run, remaining time.Duration) {
	r.enter(StateCooling)
	r.result.Outcome = domain.OutcomeCooldown
	r.result.Reason = ReasonCooldown
	r.result.CooldownHours = domain.Hours(o.gate.Window())
	r.result.HoursRemaining = domain.Hours(remaining)
	r.logger.Info("alert suppressed by cooldown", "hours_remaining", r.result.HoursRemaining)
}

// reserve claims the cooldown window when a Reserver is configured. It returns
// false when another run holds the claim; the run then ends on the cooldown
// path. A reservation backend failure does not block the alert.
func (o *Orchestrator) reserve(ctx context.Context, r *run, category domain.Category) (string, bool) {
	if o.opts.Reserver == nil {
		return "", true
	}

	res, err := o.opts.Reserver.Reserve(ctx, category, o.gate.Window())
	if err != nil {
		r.logger.Warn("cooldown reservation unavailable, continuing without it", "error", err)
		return "", true
	}
	if !res.Acquired {
		o.cooling(r, res.Remaining)
		return "", false
	}
	return res.Token, true
}

func (o *Orchestrator) release(ctx context.Context, r *run, category domain.Category, token string) {
	if o.opts.Reserver == nil || token == "" {
		return
	}
	if err := o.opts.Reserver.Release(ctx, category, token); err != nil {
		r.logger.Warn("release cooldown reservation failed", "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, res Result, ref string, runErr error) {
	if o.opts.Events == nil {
		return
	}

	e := domain.AlertEvent{
		ID:          uuid.NewString(),
		Category:    domain.CategoryWaterLevel,
		StationID:   res.Station.ID,
		Station:     res.Station.Name,
		Level:       res.CurrentLevel,
		Threshold:   res.Threshold,
		MeasuredAt:  res.MeasuredAt,
		Outcome:     res.Outcome,
		AlertSent:   res.AlertSent,
		Reason:      res.Reason,
		Summary:     res.Summary,
		EvaluatedAt: res.EvaluatedAt,
	}
	if e.Station == "" {
		e.Station = ref
	}
	if runErr != nil {
		e.Error = domain.SanitizeError(runErr)
	}

	// The run context may already be spent; the event still goes out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.opts.Events.Publish(pubCtx, e); err != nil {
		o.metrics.EventsPublished.WithLabelValues("error").Inc()
		o.logger.Warn("publish alert event failed", "event_id", e.ID, "error", err)
		return
	}
	o.metrics.EventsPublished.WithLabelValues("success").Inc()
}
