package healing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/metrics"
	"github.com/havenops/remedy/internal/recovery"
	"github.com/havenops/remedy/internal/types"
)

// handleErrorThreshold processes an error-rate breach: recent errors are
// grouped by type, each group is analyzed for root cause, and one
// recovery runs per group against its most severe representative.
func (o *Orchestrator) handleErrorThreshold(ctx context.Context, iv *types.Intervention, session *types.HealingSession) {
	groups := groupByType(iv.Errors)
	if len(groups) == 0 {
		session.Lessons = "error threshold breached but no events in window"
		return
	}

	var lessons []string
	for errType, events := range groups {
		event := mostSevere(events)

		if o.analyzer != nil {
			if cause, err := o.analyzer.Analyze(event, events); err == nil {
				lessons = append(lessons, fmt.Sprintf("%s: root cause %s (confidence %.2f)", errType, cause.PrimaryCause, cause.Confidence))
			}
		}

		result := o.recover(ctx, event, session)
		if result != nil && !result.Success {
			lessons = append(lessons, fmt.Sprintf("%s: recovery ended %s", errType, result.Status))
		}
	}
	session.Lessons = strings.Join(lessons, "; ")
}

// handleAnomalies recovers each high or critical anomaly from the
// triggering tick. Lower-severity anomalies ride along for context but do
// not get their own recovery.
func (o *Orchestrator) handleAnomalies(ctx context.Context, iv *types.Intervention, session *types.HealingSession) {
	handled := 0
	for _, a := range iv.Anomalies {
		if a.Severity != types.SeverityHigh && a.Severity != types.SeverityCritical {
			continue
		}
		handled++
		event := anomalyEvent(a)
		o.recover(ctx, event, session)
	}
	if handled == 0 {
		session.Lessons = "no high or critical anomalies to handle"
	}
}

// handleFailurePrediction runs preventively: it applies the predictor's
// suggested mitigations through the task executor as parameter overrides
// rather than driving a full recovery.
func (o *Orchestrator) handleFailurePrediction(ctx context.Context, iv *types.Intervention, session *types.HealingSession) {
	var prediction *types.FailureProbability
	if iv.Health != nil {
		prediction = iv.Health.Prediction
	}
	if prediction == nil {
		session.Lessons = "failure prediction trigger without prediction data"
		return
	}

	overrides := mitigationOverrides(prediction)
	if o.executor != nil && len(overrides) > 0 {
		if _, err := o.executor.ProcessGoal(ctx, "apply preventive mitigations", overrides); err != nil {
			session.Lessons = fmt.Sprintf("preventive mitigation failed: %v", err)
			return
		}
	}
	session.Lessons = fmt.Sprintf("applied %d preventive mitigations for %s risk (probability %.2f)",
		len(overrides), prediction.Risk, prediction.Probability)
}

// handlePerformance delegates to the performance optimizer using the
// metric snapshot captured at enqueue time.
func (o *Orchestrator) handlePerformance(iv *types.Intervention, session *types.HealingSession) {
	var snapshot map[string]float64
	if iv.Health != nil {
		snapshot = iv.Health.Metrics
	}
	actions := o.optimizer.Optimize(snapshot)
	if len(actions) == 0 {
		session.Lessons = "no optimization opportunities found"
		return
	}
	session.Lessons = fmt.Sprintf("applied optimizations: %s", strings.Join(actions, ", "))
}

// handleGeneral covers manual and health-degraded triggers: recover the
// most severe recent error if one exists, otherwise record the health
// observation and let monitoring continue.
func (o *Orchestrator) handleGeneral(ctx context.Context, iv *types.Intervention, session *types.HealingSession) {
	recent := o.stream.Recent(20)
	if len(recent) == 0 {
		score := 0.0
		if iv.Health != nil {
			score = iv.Health.OverallScore
		}
		session.Lessons = fmt.Sprintf("no recent errors; health score %.2f", score)
		return
	}
	event := mostSevere(recent)
	session.Errors = append(session.Errors, event)
	o.recover(ctx, event, session)
}

// recover runs one auto-recovery and folds the result into the session.
func (o *Orchestrator) recover(ctx context.Context, event *types.ErrorEvent, session *types.HealingSession) *types.RecoveryResult {
	rctx := recovery.DefaultContext("restore system health", event)
	rctx.MaxAttempts = o.config.MaxRecoveryAttempts
	rctx.EscalateAfter = o.config.EscalateAfter
	rctx.SelfModificationAllowed = o.config.SelfModificationAllowed
	result, err := o.recoveryMgr.AutoRecover(ctx, event, rctx, o.executor)
	if err != nil {
		fmt.Printf("Healing: recovery error for %s: %v\n", event.Type, err)
		return nil
	}
	session.Recoveries = append(session.Recoveries, result)
	metrics.ObserveRecovery(string(result.Strategy), result.Success)
	if result.Status == types.RecoveryEscalated || result.Status == types.RecoveryRollbackRequired {
		// Escalated outcomes flip the machine into escalating until the
		// session closes back to monitoring.
		o.mu.Lock()
		o.state = types.StateEscalating
		o.mu.Unlock()
	}
	return result
}

func groupByType(events []*types.ErrorEvent) map[types.ErrorType][]*types.ErrorEvent {
	groups := make(map[types.ErrorType][]*types.ErrorEvent)
	for _, e := range events {
		groups[e.Type] = append(groups[e.Type], e)
	}
	return groups
}

func mostSevere(events []*types.ErrorEvent) *types.ErrorEvent {
	best := events[0]
	for _, e := range events[1:] {
		if e.Severity.Rank() > best.Severity.Rank() {
			best = e
		}
	}
	return best
}

// anomalyEvent synthesizes an error event from an anomaly so that the
// recovery path sees a uniform input.
func anomalyEvent(a *types.Anomaly) *types.ErrorEvent {
	errType := types.ErrorTypePerformance
	for _, m := range a.AffectedMetrics {
		switch {
		case strings.Contains(m, "memory") || strings.Contains(m, "disk"):
			errType = types.ErrorTypeResource
		case strings.Contains(m, "network") || strings.Contains(m, "latency"):
			errType = types.ErrorTypeNetwork
		}
	}
	return &types.ErrorEvent{
		ID:        uuid.New().String(),
		Timestamp: a.Timestamp,
		Type:      errType,
		Severity:  a.Severity,
		Message:   a.Description,
		Context: map[string]interface{}{
			"anomaly_id":       a.ID,
			"anomaly_type":     string(a.Type),
			"affected_metrics": a.AffectedMetrics,
		},
	}
}

// mitigationOverrides maps predicted risk factors to concrete parameter
// overrides the executor can apply.
func mitigationOverrides(prediction *types.FailureProbability) map[string]interface{} {
	overrides := make(map[string]interface{})
	for _, factor := range prediction.Factors {
		switch {
		case strings.Contains(factor, "memory"):
			overrides["cache_size_mb"] = 256
			overrides["gc_aggressive"] = true
		case strings.Contains(factor, "cpu"):
			overrides["worker_count"] = 2
			overrides["batch_size"] = 16
		case strings.Contains(factor, "disk"):
			overrides["log_retention_hours"] = 24
			overrides["compress_artifacts"] = true
		case strings.Contains(factor, "error_rate"):
			overrides["retry_backoff_ms"] = 2000
		case strings.Contains(factor, "latency") || strings.Contains(factor, "network"):
			overrides["request_timeout_sec"] = 60
			overrides["connection_pool_size"] = 8
		}
	}
	return overrides
}

// Status is a point-in-time snapshot of the healing loop, safe to hand to
// callers.
type Status struct {
	// State is the current state machine state
	State types.HealingState `json:"state"`
	// Health is the latest health snapshot
	Health *types.SystemHealth `json:"health,omitempty"`
	// ActiveSessionID is the in-flight session, if any
	ActiveSessionID string `json:"active_session_id,omitempty"`
	// QueueDepth is the number of pending interventions
	QueueDepth int `json:"queue_depth"`
	// SessionsCompleted counts sessions retained in the history ring
	SessionsCompleted int `json:"sessions_completed"`
	// CheckInterval is the effective tick interval after any backoff
	CheckInterval time.Duration `json:"check_interval"`
}

// GetHealingStatus reports current state, health, the active session and
// queue depth.
func (o *Orchestrator) GetHealingStatus() *Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := &Status{
		State:             o.state,
		Health:            o.health,
		QueueDepth:        o.queue.Len(),
		SessionsCompleted: len(o.completedSessions),
		CheckInterval:     o.checkInterval,
	}
	if o.activeSession != nil {
		s.ActiveSessionID = o.activeSession.ID
	}
	return s
}

// Statistics aggregates outcomes across retained sessions.
type Statistics struct {
	// TotalSessions counts sessions in the history ring
	TotalSessions int `json:"total_sessions"`
	// SuccessRate is the fraction of successful sessions
	SuccessRate float64 `json:"success_rate"`
	// AvgDuration is the mean session duration
	AvgDuration time.Duration `json:"avg_duration"`
	// TriggerCounts breaks sessions down by trigger type
	TriggerCounts map[types.TriggerType]int `json:"trigger_counts"`
	// StrategyCounts breaks recovery attempts down by strategy
	StrategyCounts map[types.RecoveryStrategy]int `json:"strategy_counts"`
}

// GetHealingStatistics aggregates session outcomes from the in-memory
// history ring.
func (o *Orchestrator) GetHealingStatistics() *Statistics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := &Statistics{
		TriggerCounts:  make(map[types.TriggerType]int),
		StrategyCounts: make(map[types.RecoveryStrategy]int),
	}
	var succeeded int
	var total time.Duration
	for _, s := range o.completedSessions {
		stats.TotalSessions++
		stats.TriggerCounts[s.Trigger]++
		if s.Success {
			succeeded++
		}
		total += s.EndTime.Sub(s.StartTime)
		for _, r := range s.Recoveries {
			stats.StrategyCounts[r.Strategy]++
		}
	}
	if stats.TotalSessions > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.TotalSessions)
		stats.AvgDuration = total / time.Duration(stats.TotalSessions)
	}
	return stats
}

// RecentSessions returns up to n most recent completed sessions, newest
// first.
func (o *Orchestrator) RecentSessions(n int) []*types.HealingSession {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if n <= 0 || n > len(o.completedSessions) {
		n = len(o.completedSessions)
	}
	out := make([]*types.HealingSession, 0, n)
	for i := len(o.completedSessions) - 1; i >= len(o.completedSessions)-n; i-- {
		out = append(out, o.completedSessions[i])
	}
	return out
}
