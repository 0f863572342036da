package recovery

import (
	"sort"

	"github.com/havenops/remedy/internal/types"
)

// strategyPriorities maps each error type to its priority-ordered list of
// candidate strategies. Earlier entries carry a higher base score.
var strategyPriorities = map[types.ErrorType][]types.RecoveryStrategy{
	types.ErrorTypeTimeout: {
		types.StrategyRetryBackoff,
		types.StrategyParameterAdjustment,
		types.StrategyAlternativeApproach,
		types.StrategyGracefulDegradation,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeNetwork: {
		types.StrategyRetryBackoff,
		types.StrategyContextAdjustment,
		types.StrategyParameterAdjustment,
		types.StrategyGracefulDegradation,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeResource: {
		types.StrategyResourceReallocation,
		types.StrategyParameterAdjustment,
		types.StrategyAlgorithmSubstitute,
		types.StrategyGracefulDegradation,
		types.StrategyRollbackRetry,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeLogic: {
		types.StrategySelfModification,
		types.StrategyRollbackRetry,
		types.StrategyAlternativeApproach,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeRuntime: {
		types.StrategySelfModification,
		types.StrategyRetryBackoff,
		types.StrategyRollbackRetry,
		types.StrategyAlternativeApproach,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeMalformedInput: {
		types.StrategyContextAdjustment,
		types.StrategyParameterAdjustment,
		types.StrategySelfModification,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypeExternal: {
		types.StrategyRetryBackoff,
		types.StrategyGracefulDegradation,
		types.StrategyAlternativeApproach,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypePermission: {
		types.StrategyContextAdjustment,
		types.StrategyHumanEscalation,
	},
	types.ErrorTypePerformance: {
		types.StrategyParameterAdjustment,
		types.StrategyResourceReallocation,
		types.StrategyAlgorithmSubstitute,
		types.StrategyGracefulDegradation,
	},
	types.ErrorTypeSecurity: {
		types.StrategyRollbackRetry,
		types.StrategyHumanEscalation,
	},
}

// defaultPriorities is the fallback chain for unknown error types.
var defaultPriorities = []types.RecoveryStrategy{
	types.StrategyRetryBackoff,
	types.StrategyParameterAdjustment,
	types.StrategyAlternativeApproach,
	types.StrategyGracefulDegradation,
	types.StrategyHumanEscalation,
}

// historyAdjustment is the maximum score shift a strategy's recorded
// success/failure history can apply.
const historyAdjustment = 0.1

// Selector ranks recovery strategies for an error, informed by learned
// pattern history.
type Selector struct {
	patterns *PatternStore
}

// NewSelector creates a strategy selector. The pattern store may be nil,
// in which case no history adjustment is applied.
func NewSelector(patterns *PatternStore) *Selector {
	return &Selector{patterns: patterns}
}

// scored pairs a strategy with its adjusted priority score.
type scored struct {
	strategy types.RecoveryStrategy
	score    float64
}

// Candidates returns the ordered strategies to try for the error, with
// already-attempted and constraint-disallowed strategies removed, and the
// remainder re-ranked by +-0.1 based on recorded history for the same
// error signature.
func (s *Selector) Candidates(event *types.ErrorEvent, rctx *types.RecoveryContext, signature string) []types.RecoveryStrategy {
	base := strategyPriorities[event.Type]
	if base == nil {
		base = defaultPriorities
	}

	var ranked []scored
	for i, strategy := range base {
		if rctx.Attempted(strategy) {
			continue
		}
		if !allowed(strategy, rctx) {
			continue
		}
		// Base score decays with list position.
		score := 1.0 - float64(i)*0.1
		if s.patterns != nil {
			if rate, ok := s.patterns.SuccessRate(signature, strategy); ok {
				// Map rate in [0,1] to an adjustment in [-0.1, +0.1].
				score += (rate - 0.5) * 2 * historyAdjustment
			}
		}
		ranked = append(ranked, scored{strategy, score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]types.RecoveryStrategy, len(ranked))
	for i, r := range ranked {
		out[i] = r.strategy
	}
	return out
}

// allowed applies the recovery context's constraint flags.
func allowed(strategy types.RecoveryStrategy, rctx *types.RecoveryContext) bool {
	switch strategy {
	case types.StrategyResourceReallocation:
		return rctx.ResourcesAvailable
	case types.StrategyRollbackRetry:
		return rctx.CheckpointsAvailable
	case types.StrategyHumanEscalation:
		return rctx.EscalationAllowed
	case types.StrategySelfModification:
		return rctx.SelfModificationAllowed
	default:
		return true
	}
}
