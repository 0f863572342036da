// Package healing owns the health state machine and the monitoring
// loops: it polls metrics, detects anomalies and failure risk, queues
// prioritized interventions, and drives the recovery manager through
// healing sessions.
package healing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/havenops/remedy/internal/anomaly"
	"github.com/havenops/remedy/internal/errstream"
	"github.com/havenops/remedy/internal/learning"
	"github.com/havenops/remedy/internal/metrics"
	"github.com/havenops/remedy/internal/recovery"
	"github.com/havenops/remedy/internal/rootcause"
	"github.com/havenops/remedy/internal/storage"
	"github.com/havenops/remedy/internal/types"
)

// MetricsSource supplies the current metric snapshot on demand. At
// minimum it should provide cpu_usage, memory_usage, disk_usage,
// error_rate, critical_errors and response_time; anything else is passed
// through to anomaly detection unchanged.
type MetricsSource interface {
	Collect(ctx context.Context) (map[string]float64, error)
}

// Deps holds dependencies for creating an Orchestrator.
type Deps struct {
	Metrics  MetricsSource
	Stream   *errstream.Stream
	Engine   *anomaly.Engine
	Predict  *anomaly.Predictor
	Recovery *recovery.Manager
	Analyzer *rootcause.Analyzer
	Learner  *learning.Learner
	Executor recovery.TaskExecutor
	Store    storage.Storage // optional
	Config   *Config
}

// Orchestrator runs the healing control loop. State transitions, session
// bookkeeping and the intervention queue are owned by its tasks; other
// components only see snapshots.
type Orchestrator struct {
	mu sync.RWMutex

	metricsSource MetricsSource
	stream        *errstream.Stream
	engine        *anomaly.Engine
	predictor     *anomaly.Predictor
	recoveryMgr   *recovery.Manager
	analyzer      *rootcause.Analyzer
	learner       *learning.Learner
	executor      recovery.TaskExecutor
	store         storage.Storage
	optimizer     *PerformanceOptimizer
	config        *Config

	queue *InterventionQueue

	// state machine
	state  types.HealingState
	health *types.SystemHealth

	// session bookkeeping (written only by the consumer task)
	activeSession     *types.HealingSession
	completedSessions []*types.HealingSession

	// backoff on intervention storms
	consecutiveFailures int
	checkInterval       time.Duration

	// control
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewOrchestrator creates a healing orchestrator.
func NewOrchestrator(deps *Deps) (*Orchestrator, error) {
	if deps == nil {
		return nil, fmt.Errorf("deps are required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics source is required")
	}
	if deps.Stream == nil {
		return nil, fmt.Errorf("error stream is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("anomaly engine is required")
	}
	if deps.Predict == nil {
		return nil, fmt.Errorf("predictor is required")
	}
	if deps.Recovery == nil {
		return nil, fmt.Errorf("recovery manager is required")
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()

	return &Orchestrator{
		metricsSource: deps.Metrics,
		stream:        deps.Stream,
		engine:        deps.Engine,
		predictor:     deps.Predict,
		recoveryMgr:   deps.Recovery,
		analyzer:      deps.Analyzer,
		learner:       deps.Learner,
		executor:      deps.Executor,
		store:         deps.Store,
		optimizer:     NewPerformanceOptimizer(),
		config:        cfg,
		queue:         NewInterventionQueue(),
		state:         types.StateHealthy,
		checkInterval: cfg.CheckInterval,
	}, nil
}

// Start launches the monitoring tasks: health checker, intervention
// consumer, performance optimizer, and the storage cleanup sweeper. It
// returns immediately; Stop shuts the tasks down.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { o.healthCheckLoop(gctx); return nil })
	g.Go(func() error { o.consumeLoop(gctx); return nil })
	g.Go(func() error { o.optimizerLoop(gctx); return nil })
	if o.store != nil {
		g.Go(func() error { o.cleanupLoop(gctx); return nil })
	}

	go func() {
		_ = g.Wait()
		close(o.done)
	}()

	fmt.Printf("Healing: orchestrator started (check interval %v)\n", o.config.CheckInterval)
	return nil
}

// Stop cancels the monitoring tasks and waits for them to drain.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for healing tasks: %w", ctx.Err())
	}
	fmt.Printf("Healing: orchestrator stopped\n")
	return nil
}

// healthCheckLoop is the producer task: on each tick it collects metrics,
// recomputes health and state, runs detection and prediction, and
// enqueues an intervention when warranted.
func (o *Orchestrator) healthCheckLoop(ctx context.Context) {
	for {
		interval := o.currentCheckInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		o.runHealthCheck(ctx)
	}
}

// runHealthCheck performs one monitoring tick. Failures inside the tick
// are recorded as error events and degrade the health score instead of
// terminating the loop.
func (o *Orchestrator) runHealthCheck(ctx context.Context) {
	snapshot, err := o.collectMetrics(ctx)
	if err != nil {
		// A failing metrics source is itself an error event.
		if _, rerr := o.stream.Record(ctx, err, map[string]interface{}{"source": "metrics_collection"}, "healing", ""); rerr != nil {
			fmt.Printf("Healing: failed to record metrics failure: %v\n", rerr)
		}
		o.mu.Lock()
		if o.health != nil {
			o.health.OverallScore *= 0.9
		}
		o.mu.Unlock()
		return
	}

	windowStart := time.Now().Add(-o.config.ErrorWindow)
	recent := o.stream.EventsSince(windowStart)
	errorRate := float64(len(recent)) / o.config.ErrorWindow.Seconds()
	snapshot["error_rate"] = errorRate
	snapshot["critical_errors"] = float64(countCritical(recent))

	anomalies := o.engine.Detect(snapshot)
	for _, a := range anomalies {
		metrics.ObserveAnomaly(string(a.Type), string(a.Severity))
		if o.store != nil {
			if serr := o.store.StoreAnomaly(ctx, a); serr != nil {
				fmt.Printf("Healing: failed to persist anomaly: %v\n", serr)
			}
		}
	}

	prediction := o.predictor.Predict(snapshot)

	health := computeHealth(snapshot, len(recent), errorRate, prediction)
	metrics.SetHealthScore(health.OverallScore)

	o.mu.Lock()
	prevState := o.state
	o.health = health
	o.state = deriveState(o.state, health, o.config.DegradedFloor, o.config.FailedFloor)
	newState := o.state
	o.mu.Unlock()

	if newState != prevState {
		fmt.Printf("Healing: state %s -> %s (score %.2f)\n", prevState, newState, health.OverallScore)
	}

	if trigger, ok := o.interventionWarranted(health, anomalies, prediction, errorRate); ok {
		o.enqueueIntervention(trigger, health, anomalies, recent)
	}
}

// collectMetrics calls the external metrics source, containing panics at
// the task boundary.
func (o *Orchestrator) collectMetrics(ctx context.Context) (snapshot map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			snapshot = nil
			err = fmt.Errorf("metrics source panicked: %v", r)
		}
	}()
	return o.metricsSource.Collect(ctx)
}

// interventionWarranted applies the fixed decision rules: error-rate
// above 0.1/s, any high/critical anomaly, failure probability above 0.7,
// or overall health below 0.5.
func (o *Orchestrator) interventionWarranted(health *types.SystemHealth, anomalies []*types.Anomaly, prediction *types.FailureProbability, errorRate float64) (types.TriggerType, bool) {
	if errorRate > o.config.ErrorRateThreshold {
		return types.TriggerErrorThreshold, true
	}
	for _, a := range anomalies {
		if a.Severity == types.SeverityHigh || a.Severity == types.SeverityCritical {
			return types.TriggerAnomaly, true
		}
	}
	if prediction != nil && prediction.Probability > o.config.FailureProbThreshold {
		return types.TriggerFailurePredict, true
	}
	if health.ComponentScores["responsiveness"] < 0.3 {
		return types.TriggerPerformance, true
	}
	if health.OverallScore < o.config.InterventionFloor {
		return types.TriggerHealthDegraded, true
	}
	return "", false
}

// basePriorities per trigger type; degraded health bumps the priority by
// +10 to +20.
var basePriorities = map[types.TriggerType]int{
	types.TriggerErrorThreshold: 60,
	types.TriggerAnomaly:        55,
	types.TriggerFailurePredict: 45,
	types.TriggerPerformance:    35,
	types.TriggerHealthDegraded: 30,
	types.TriggerManual:         70,
}

func (o *Orchestrator) enqueueIntervention(trigger types.TriggerType, health *types.SystemHealth, anomalies []*types.Anomaly, errors []*types.ErrorEvent) {
	priority := basePriorities[trigger]
	if health != nil {
		if health.OverallScore < o.config.DegradedFloor {
			priority += 20
		} else if health.OverallScore < o.config.InterventionFloor {
			priority += 10
		}
	}

	iv := &types.Intervention{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Priority:  priority,
		QueuedAt:  time.Now(),
		Health:    health,
		Anomalies: anomalies,
		Errors:    errors,
	}
	o.queue.Push(iv)
	fmt.Printf("Healing: queued %s intervention (priority %d)\n", trigger, priority)
}

// TriggerManualIntervention enqueues a manual intervention carrying the
// supplied context. It is the operational entry point for operators.
func (o *Orchestrator) TriggerManualIntervention(ivContext map[string]interface{}) string {
	o.mu.RLock()
	health := o.health
	o.mu.RUnlock()

	iv := &types.Intervention{
		ID:       uuid.New().String(),
		Trigger:  types.TriggerManual,
		Priority: basePriorities[types.TriggerManual],
		QueuedAt: time.Now(),
		Health:   health,
		Context:  ivContext,
	}
	o.queue.Push(iv)
	return iv.ID
}

// consumeLoop is the single consumer task: it serially processes queued
// interventions, so at most one healing session is active at a time.
func (o *Orchestrator) consumeLoop(ctx context.Context) {
	// Pace session starts so an intervention storm cannot spin the
	// recovery machinery continuously.
	limiter := rate.NewLimiter(rate.Every(o.config.MinSessionGap), 1)

	for {
		if ctx.Err() != nil {
			return
		}
		iv := o.queue.Pop(o.config.QueuePollTimeout)
		if iv == nil {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		o.handleIntervention(ctx, iv)
	}
}

// handleIntervention opens a healing session, dispatches to the
// trigger-specific handler, and closes the session. Handler panics are
// contained and close the session as failed.
func (o *Orchestrator) handleIntervention(ctx context.Context, iv *types.Intervention) {
	session := &types.HealingSession{
		ID:           uuid.New().String(),
		StartTime:    time.Now(),
		Trigger:      iv.Trigger,
		InitialState: iv.Health,
		Errors:       iv.Errors,
		Anomalies:    iv.Anomalies,
	}

	o.mu.Lock()
	o.activeSession = session
	if iv.Trigger == types.TriggerErrorThreshold || iv.Trigger == types.TriggerAnomaly || iv.Trigger == types.TriggerManual {
		o.state = types.StateRecovering
	} else {
		o.state = types.StateDetecting
	}
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.CreateHealingSession(ctx, session); err != nil {
			fmt.Printf("Healing: failed to persist session open: %v\n", err)
		}
	}

	o.dispatchSafe(ctx, iv, session)
	o.closeSession(ctx, session)
}

func (o *Orchestrator) dispatchSafe(ctx context.Context, iv *types.Intervention, session *types.HealingSession) {
	defer func() {
		if r := recover(); r != nil {
			session.Lessons = fmt.Sprintf("handler panicked: %v", r)
			fmt.Printf("Healing: %s handler panicked: %v\n", iv.Trigger, r)
		}
	}()

	switch iv.Trigger {
	case types.TriggerErrorThreshold:
		o.handleErrorThreshold(ctx, iv, session)
	case types.TriggerAnomaly:
		o.handleAnomalies(ctx, iv, session)
	case types.TriggerFailurePredict:
		o.handleFailurePrediction(ctx, iv, session)
	case types.TriggerPerformance:
		o.handlePerformance(iv, session)
	case types.TriggerHealthDegraded, types.TriggerManual:
		o.handleGeneral(ctx, iv, session)
	default:
		session.Lessons = fmt.Sprintf("no handler for trigger %s", iv.Trigger)
	}
}

// closeSession finalizes bookkeeping, feeds the learner, updates backoff
// state, and returns the loop to monitoring.
func (o *Orchestrator) closeSession(ctx context.Context, session *types.HealingSession) {
	session.EndTime = time.Now()
	session.Success = sessionSucceeded(session)

	o.mu.Lock()
	session.FinalState = o.health
	o.activeSession = nil
	o.completedSessions = append(o.completedSessions, session)
	if len(o.completedSessions) > o.config.MaxSessionHistory {
		o.completedSessions = o.completedSessions[len(o.completedSessions)-o.config.MaxSessionHistory:]
	}
	if session.Success {
		o.consecutiveFailures = 0
		o.checkInterval = o.config.CheckInterval
	} else {
		o.consecutiveFailures++
		if o.consecutiveFailures >= o.config.BackoffThreshold {
			o.checkInterval = o.checkInterval * 2
			if o.checkInterval > o.config.MaxCheckInterval {
				o.checkInterval = o.config.MaxCheckInterval
			}
			fmt.Printf("Healing: backing off check interval to %v after %d failed sessions\n", o.checkInterval, o.consecutiveFailures)
		}
	}
	o.state = types.StateMonitoring
	o.mu.Unlock()

	metrics.ObserveSession(string(session.Trigger), session.Success, session.EndTime.Sub(session.StartTime))

	if o.store != nil {
		if err := o.store.CloseHealingSession(ctx, session); err != nil {
			fmt.Printf("Healing: failed to persist session close: %v\n", err)
		}
	}

	if o.learner != nil {
		o.learner.Record(ctx, sessionExperience(session))
	}

	fmt.Printf("Healing: session %s closed (trigger=%s success=%v recoveries=%d)\n",
		session.ID, session.Trigger, session.Success, len(session.Recoveries))
}

func sessionSucceeded(session *types.HealingSession) bool {
	if len(session.Recoveries) == 0 {
		// Preventive sessions with no recovery attempts count as success
		// unless the handler recorded a failure lesson.
		return session.Lessons == "" || session.Trigger == types.TriggerFailurePredict || session.Trigger == types.TriggerPerformance
	}
	for _, r := range session.Recoveries {
		if !r.Success {
			return false
		}
	}
	return true
}

// sessionExperience converts a closed session into a learning experience.
func sessionExperience(session *types.HealingSession) *types.Experience {
	actions := make([]string, 0, len(session.Recoveries))
	for _, r := range session.Recoveries {
		actions = append(actions, string(r.Strategy))
	}
	outcome := "recovered"
	if !session.Success {
		outcome = "unresolved"
	}
	resourcePressure := 0.0
	if session.InitialState != nil {
		resourcePressure = 1 - session.InitialState.OverallScore
	}
	return &types.Experience{
		ID:        session.ID,
		Timestamp: session.EndTime,
		Context: map[string]interface{}{
			"trigger": string(session.Trigger),
		},
		Actions:         actions,
		RecoveryActions: actions,
		Outcome:         outcome,
		Success:         session.Success,
		ExecutionTime:   session.EndTime.Sub(session.StartTime),
		ResourceUsage:   resourcePressure,
		Efficiency:      efficiencyOf(session),
		Confidence:      0.8,
	}
}

func efficiencyOf(session *types.HealingSession) float64 {
	if len(session.Recoveries) == 0 {
		return 1.0
	}
	// Fewer attempts for a successful outcome is more efficient.
	e := 1.0 / float64(len(session.Recoveries))
	if !session.Success {
		e *= 0.5
	}
	return e
}

func countCritical(events []*types.ErrorEvent) int {
	n := 0
	for _, e := range events {
		if e.Severity == types.SeverityCritical {
			n++
		}
	}
	return n
}

func (o *Orchestrator) currentCheckInterval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.checkInterval
}

// State returns the current healing state.
func (o *Orchestrator) State() types.HealingState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}
