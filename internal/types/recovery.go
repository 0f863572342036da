package types

import "time"

// RecoveryStrategy is one of the fixed taxonomy of remediation approaches.
type RecoveryStrategy string

const (
	StrategyRetryBackoff         RecoveryStrategy = "retry_with_backoff"
	StrategyParameterAdjustment  RecoveryStrategy = "parameter_adjustment"
	StrategyAlgorithmSubstitute  RecoveryStrategy = "algorithm_substitution"
	StrategyResourceReallocation RecoveryStrategy = "resource_reallocation"
	StrategyGracefulDegradation  RecoveryStrategy = "graceful_degradation"
	StrategyRollbackRetry        RecoveryStrategy = "rollback_and_retry"
	StrategyAlternativeApproach  RecoveryStrategy = "alternative_approach"
	StrategySelfModification     RecoveryStrategy = "self_modification"
	StrategyContextAdjustment    RecoveryStrategy = "context_adjustment"
	StrategyHumanEscalation      RecoveryStrategy = "human_escalation"
)

// RecoveryStatus is the terminal status of an auto-recovery invocation.
type RecoveryStatus string

const (
	RecoverySuccess          RecoveryStatus = "success"
	RecoveryPartialSuccess   RecoveryStatus = "partial_success"
	RecoveryFailed           RecoveryStatus = "failed"
	RecoveryEscalated        RecoveryStatus = "escalated"
	RecoveryRollbackRequired RecoveryStatus = "rollback_required"
	RecoveryInProgress       RecoveryStatus = "in_progress"
)

// AttemptRecord is one strategy attempt recorded in a recovery context.
type AttemptRecord struct {
	// Strategy is the strategy that was tried
	Strategy RecoveryStrategy `json:"strategy"`
	// Success indicates whether the attempt succeeded
	Success bool `json:"success"`
	// Timestamp is when the attempt completed
	Timestamp time.Time `json:"timestamp"`
	// Detail carries an optional human-readable note
	Detail string `json:"detail,omitempty"`
}

// RecoveryContext is the mutable working record for one healing attempt.
// It accumulates attempt records as strategies are tried.
type RecoveryContext struct {
	// Goal is the original goal description
	Goal string `json:"goal"`
	// FailedApproach describes the approach that failed
	FailedApproach string `json:"failed_approach"`
	// ErrorDetails is the error text that triggered recovery
	ErrorDetails string `json:"error_details"`
	// SystemState is a snapshot of system state at recovery start
	SystemState map[string]interface{} `json:"system_state,omitempty"`
	// PreviousAttempts lists every strategy attempt so far
	PreviousAttempts []AttemptRecord `json:"previous_attempts"`
	// ResourcesAvailable indicates whether spare resources exist to reallocate
	ResourcesAvailable bool `json:"resources_available"`
	// CheckpointsAvailable indicates whether rollback checkpoints exist
	CheckpointsAvailable bool `json:"checkpoints_available"`
	// EscalationAllowed indicates whether human escalation is permitted
	EscalationAllowed bool `json:"escalation_allowed"`
	// SelfModificationAllowed indicates whether code-fix strategies may run
	SelfModificationAllowed bool `json:"self_modification_allowed"`
	// MaxAttempts caps the number of strategy attempts (default 3)
	MaxAttempts int `json:"max_attempts"`
	// EscalateAfter is the attempt count after which escalation kicks in (default 2)
	EscalateAfter int `json:"escalate_after"`
	// Overrides carries parameter/context overrides accumulated by strategies,
	// passed to the task executor on re-invocation
	Overrides map[string]interface{} `json:"overrides,omitempty"`
}

// Attempted reports whether the given strategy is already recorded in
// PreviousAttempts.
func (rc *RecoveryContext) Attempted(s RecoveryStrategy) bool {
	for _, a := range rc.PreviousAttempts {
		if a.Strategy == s {
			return true
		}
	}
	return false
}

// RecordAttempt appends an attempt record.
func (rc *RecoveryContext) RecordAttempt(s RecoveryStrategy, success bool, detail string) {
	rc.PreviousAttempts = append(rc.PreviousAttempts, AttemptRecord{
		Strategy:  s,
		Success:   success,
		Timestamp: time.Now(),
		Detail:    detail,
	})
}

// FixType categorizes a candidate code change.
type FixType string

const (
	FixPatch              FixType = "patch"
	FixParameterChange    FixType = "parameter_change"
	FixConfiguration      FixType = "configuration"
	FixResourceAdjustment FixType = "resource_adjustment"
	FixAlgorithmReplace   FixType = "algorithm_replacement"
	FixLogic              FixType = "logic_fix"
	FixErrorHandling      FixType = "error_handling"
)

// ImpactLevel estimates the blast radius of applying a fix.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// CodeFix is a candidate code change produced by the code analyzer.
// Success/failure counts accumulate across applications and never reset.
type CodeFix struct {
	// ID uniquely identifies this fix
	ID string `json:"id"`
	// Type is the fix category
	Type FixType `json:"fix_type"`
	// Description explains what the fix does
	Description string `json:"description"`
	// OriginalCode is the code text before the fix
	OriginalCode string `json:"original_code,omitempty"`
	// FixedCode is the code text after the fix
	FixedCode string `json:"fixed_code,omitempty"`
	// Confidence is the analyzer's confidence in 0.0-1.0
	Confidence float64 `json:"confidence"`
	// Impact is the estimated impact level
	Impact ImpactLevel `json:"impact"`
	// RollbackInfo carries whatever is needed to undo the fix
	RollbackInfo string `json:"rollback_info,omitempty"`
	// SuccessCount is the cumulative number of successful applications
	SuccessCount int `json:"success_count"`
	// FailureCount is the cumulative number of failed applications
	FailureCount int `json:"failure_count"`
}

// RecoveryResult is the terminal outcome of one auto-recovery invocation.
// Immutable once finalized.
type RecoveryResult struct {
	// Status is the terminal status
	Status RecoveryStatus `json:"status"`
	// Strategy is the strategy that produced the terminal outcome
	Strategy RecoveryStrategy `json:"strategy"`
	// Success indicates overall success
	Success bool `json:"success"`
	// Duration is how long the recovery took
	Duration time.Duration `json:"duration"`
	// OriginalError is the error text that triggered recovery
	OriginalError string `json:"original_error"`
	// AppliedFixes lists code fixes applied during recovery
	AppliedFixes []*CodeFix `json:"applied_fixes,omitempty"`
	// LessonsLearned is free-text takeaways for the learning layer
	LessonsLearned string `json:"lessons_learned,omitempty"`
	// PerformanceImpact maps metric name to observed delta, when measured
	PerformanceImpact map[string]float64 `json:"performance_impact,omitempty"`
	// RolledBack indicates whether a rollback was performed
	RolledBack bool `json:"rolled_back"`
}

// RecoveryPattern is a learned association between an error signature and
// strategy effectiveness. Never deleted, only refined.
type RecoveryPattern struct {
	// ID uniquely identifies this pattern
	ID string `json:"id"`
	// Signature is the normalized error signature this pattern matches
	Signature string `json:"signature"`
	// SuccessfulStrategies is the set of strategies known to have succeeded
	SuccessfulStrategies []RecoveryStrategy `json:"successful_strategies"`
	// SuccessRates maps strategy to its running success rate in 0.0-1.0
	SuccessRates map[RecoveryStrategy]float64 `json:"success_rates"`
	// StrategyAttempts maps strategy to how many outcomes fed its rate
	StrategyAttempts map[RecoveryStrategy]int `json:"strategy_attempts,omitempty"`
	// AvgRecoveryTime is the moving-average recovery duration
	AvgRecoveryTime time.Duration `json:"avg_recovery_time"`
	// Conditions describes when this pattern applies
	Conditions map[string]interface{} `json:"conditions,omitempty"`
	// LastUpdated is when the pattern was last refined
	LastUpdated time.Time `json:"last_updated"`
	// UsageCount is how many recovery results have fed this pattern
	UsageCount int `json:"usage_count"`
}

// RootCause is the analyzer's best-effort explanation for one error event.
// Created on demand, immutable.
type RootCause struct {
	// PrimaryCause is the top-ranked cause label
	PrimaryCause string `json:"primary_cause"`
	// ContributingFactors lists secondary factor labels
	ContributingFactors []string `json:"contributing_factors"`
	// Evidence lists the evidence strings gathered during analysis
	Evidence []string `json:"evidence"`
	// Confidence is the analyzer's confidence in 0.0-1.0
	Confidence float64 `json:"confidence"`
	// SuggestedFixes lists remediation suggestions
	SuggestedFixes []string `json:"suggested_fixes"`
	// SimilarIncidents references similar historical incidents
	SimilarIncidents []string `json:"similar_incidents,omitempty"`
}
