// Package recovery selects and executes remediation strategies for
// classified errors, generates and applies candidate code fixes, and
// records outcomes into learned recovery patterns.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/havenops/remedy/internal/errstream"
	"github.com/havenops/remedy/internal/types"
)

// defaultMaxAttempts caps strategy attempts per recovery.
const defaultMaxAttempts = 3

// defaultEscalateAfter is the attempt count after which escalation is the
// terminal fallback.
const defaultEscalateAfter = 2

// ManagerConfig holds dependencies and knobs for the recovery manager.
type ManagerConfig struct {
	// Patterns is the learned-pattern store. Required.
	Patterns *PatternStore
	// Escalation handles human escalation. Optional.
	Escalation EscalationHandler
	// Checkpointer enables rollback-and-retry. Optional.
	Checkpointer Checkpointer
	// Workspace receives applied code fixes. Optional; without it
	// self-modification only proposes fixes.
	Workspace Workspace
	// FixStats is the shared per-fix tally. Optional; created if nil.
	FixStats *FixStats
	// FixSink persists applied code fixes. Optional.
	FixSink FixSink
}

// Manager implements auto-recovery: strategy selection, execution with
// fallback chains, and outcome recording.
type Manager struct {
	selector     *Selector
	patterns     *PatternStore
	codeAnalyzer *CodeAnalyzer
	applier      *Applier
	workspace    Workspace
	checkpointer Checkpointer
	escalation   EscalationHandler

	// clock abstracts retry delays for tests
	clock func(d time.Duration) <-chan time.Time
}

// NewManager creates a recovery manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil || cfg.Patterns == nil {
		return nil, fmt.Errorf("pattern store is required")
	}
	return &Manager{
		selector:     NewSelector(cfg.Patterns),
		patterns:     cfg.Patterns,
		codeAnalyzer: NewCodeAnalyzer(),
		applier:      NewApplier(cfg.FixStats, cfg.FixSink),
		workspace:    cfg.Workspace,
		checkpointer: cfg.Checkpointer,
		escalation:   cfg.Escalation,
		clock:        time.After,
	}, nil
}

// Patterns exposes the pattern store for other components.
func (m *Manager) Patterns() *PatternStore { return m.patterns }

// Analyzer exposes the code analyzer for preview use.
func (m *Manager) Analyzer() *CodeAnalyzer { return m.codeAnalyzer }

// DefaultContext builds a recovery context for an error event with the
// default attempt and escalation limits.
func DefaultContext(goal string, event *types.ErrorEvent) *types.RecoveryContext {
	return &types.RecoveryContext{
		Goal:                    goal,
		ErrorDetails:            event.Message,
		PreviousAttempts:        []types.AttemptRecord{},
		ResourcesAvailable:      true,
		EscalationAllowed:       true,
		SelfModificationAllowed: true,
		MaxAttempts:             defaultMaxAttempts,
		EscalateAfter:           defaultEscalateAfter,
	}
}

// AutoRecover tries strategies in ranked order until one succeeds or the
// attempt limit is reached, then falls back to escalation if the
// escalation threshold was crossed. Every attempt is appended to the
// recovery context regardless of outcome.
func (m *Manager) AutoRecover(ctx context.Context, event *types.ErrorEvent, rctx *types.RecoveryContext, exec TaskExecutor) (*types.RecoveryResult, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	if rctx == nil {
		rctx = DefaultContext("recover from: "+event.Message, event)
	}
	if rctx.MaxAttempts <= 0 {
		rctx.MaxAttempts = defaultMaxAttempts
	}
	if rctx.EscalateAfter <= 0 {
		rctx.EscalateAfter = defaultEscalateAfter
	}

	start := time.Now()
	signature := errstream.Signature(event.Type, event.Message)

	result := &types.RecoveryResult{
		Status:        types.RecoveryInProgress,
		OriginalError: event.Message,
	}

	for len(rctx.PreviousAttempts) < rctx.MaxAttempts {
		candidates := m.selector.Candidates(event, rctx, signature)
		strategy, ok := firstNonEscalation(candidates)
		if !ok {
			break
		}

		outcome := m.runStrategy(ctx, strategy, event, rctx, exec)
		rctx.RecordAttempt(strategy, outcome.success, outcome.detail)
		m.patterns.RecordOutcome(ctx, signature, strategy, outcome.success, time.Since(start))
		result.AppliedFixes = append(result.AppliedFixes, outcome.fixes...)
		if outcome.rolledBack {
			result.RolledBack = true
		}

		fmt.Printf("Recovery: strategy %s -> success=%v (%s)\n", strategy, outcome.success, outcome.detail)

		if outcome.rollbackFailed {
			result.Status = types.RecoveryRollbackRequired
			result.Strategy = strategy
			result.Duration = time.Since(start)
			result.LessonsLearned = "rollback failed; system may be in an inconsistent intermediate state"
			return result, nil
		}

		if outcome.success {
			result.Strategy = strategy
			result.Success = true
			result.Duration = time.Since(start)
			if outcome.partial {
				result.Status = types.RecoveryPartialSuccess
				result.LessonsLearned = outcome.detail
			} else {
				result.Status = types.RecoverySuccess
				result.LessonsLearned = fmt.Sprintf("strategy %s resolved %s errors like this", strategy, event.Type)
			}
			return result, nil
		}
	}

	// Attempt limit reached or candidates exhausted without success.
	attempts := len(rctx.PreviousAttempts)
	if attempts >= rctx.EscalateAfter && rctx.EscalationAllowed && !rctx.Attempted(types.StrategyHumanEscalation) {
		outcome := m.escalate(ctx, event, rctx)
		rctx.RecordAttempt(types.StrategyHumanEscalation, outcome.success, outcome.detail)
		m.patterns.RecordOutcome(ctx, signature, types.StrategyHumanEscalation, outcome.success, time.Since(start))

		result.Strategy = types.StrategyHumanEscalation
		result.Duration = time.Since(start)
		if outcome.success {
			result.Success = true
			result.Status = types.RecoverySuccess
			result.LessonsLearned = "resolved via escalation"
		} else {
			result.Status = types.RecoveryEscalated
			result.LessonsLearned = outcome.detail
		}
		return result, nil
	}

	result.Status = types.RecoveryFailed
	result.Duration = time.Since(start)
	if attempts > 0 {
		result.Strategy = rctx.PreviousAttempts[attempts-1].Strategy
	}
	result.LessonsLearned = fmt.Sprintf("%d strategies failed for %s errors matching %q", attempts, event.Type, signature)
	return result, nil
}

func firstNonEscalation(candidates []types.RecoveryStrategy) (types.RecoveryStrategy, bool) {
	for _, c := range candidates {
		if c != types.StrategyHumanEscalation {
			return c, true
		}
	}
	return "", false
}
