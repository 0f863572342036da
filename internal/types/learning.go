package types

import "time"

// Experience is a structured record of one executed task or recovery
// attempt, used as learning input.
type Experience struct {
	// ID uniquely identifies this experience
	ID string `json:"id"`
	// Timestamp is when the execution completed
	Timestamp time.Time `json:"timestamp"`
	// Context carries the execution context (task type, trigger, etc.)
	Context map[string]interface{} `json:"context,omitempty"`
	// Actions is the ordered list of actions taken
	Actions []string `json:"actions"`
	// RecoveryActions is the subset of actions that were recovery steps
	RecoveryActions []string `json:"recovery_actions,omitempty"`
	// Outcome summarizes the result
	Outcome string `json:"outcome"`
	// Success indicates whether the execution succeeded
	Success bool `json:"success"`
	// ExecutionTime is how long the execution took
	ExecutionTime time.Duration `json:"execution_time"`
	// Accuracy is a quality measure in 0.0-1.0, when applicable
	Accuracy float64 `json:"accuracy"`
	// Efficiency is a cost-effectiveness measure in 0.0-1.0
	Efficiency float64 `json:"efficiency"`
	// ResourceUsage is a normalized resource-consumption measure in 0.0-1.0
	ResourceUsage float64 `json:"resource_usage"`
	// Complexity is a task-complexity measure in 0.0-1.0
	Complexity float64 `json:"complexity"`
	// Confidence is the executing agent's confidence in 0.0-1.0
	Confidence float64 `json:"confidence"`
}

// PatternType categorizes a learned pattern.
type PatternType string

const (
	PatternSuccess       PatternType = "success"
	PatternFailure       PatternType = "failure"
	PatternEfficiency    PatternType = "efficiency"
	PatternCollaboration PatternType = "collaboration"
	PatternAnti          PatternType = "anti_pattern"
)

// LearnedPattern is a generalized, confidence-scored summary of multiple
// similar experiences, used to bias future strategy choice.
type LearnedPattern struct {
	// ID uniquely identifies this pattern
	ID string `json:"id"`
	// Type categorizes the pattern
	Type PatternType `json:"pattern_type"`
	// Description summarizes the pattern
	Description string `json:"description"`
	// Conditions are the most common context values across members
	Conditions map[string]interface{} `json:"conditions,omitempty"`
	// Actions are the most common actions at each sequence position
	Actions []string `json:"actions,omitempty"`
	// Outcomes are per-cluster metric averages
	Outcomes map[string]float64 `json:"outcomes,omitempty"`
	// Confidence is bounded by cluster size and success rate, 0.0-1.0
	Confidence float64 `json:"confidence"`
	// SupportingExperiences references the experience IDs in the cluster
	SupportingExperiences []string `json:"supporting_experiences"`
	// CreatedAt is when the pattern was derived
	CreatedAt time.Time `json:"created_at"`
}

// StrategyUpdateKind categorizes a proposed strategy update.
type StrategyUpdateKind string

const (
	UpdatePromptParameters    StrategyUpdateKind = "prompt_parameters"
	UpdateExecutionParameters StrategyUpdateKind = "execution_parameters"
	UpdateResourceAllocation  StrategyUpdateKind = "resource_allocation"
)

// StrategyUpdate is a proposed change to execution strategy derived from
// learned patterns, ranked by ExpectedImprovement * Confidence.
type StrategyUpdate struct {
	// ID uniquely identifies this update
	ID string `json:"id"`
	// Kind categorizes what the update changes
	Kind StrategyUpdateKind `json:"kind"`
	// Description explains the proposed change
	Description string `json:"description"`
	// Changes maps parameter name to proposed value
	Changes map[string]interface{} `json:"changes,omitempty"`
	// ExpectedImprovement estimates the relative gain in 0.0-1.0
	ExpectedImprovement float64 `json:"expected_improvement"`
	// Confidence is derived from the supporting pattern's confidence
	Confidence float64 `json:"confidence"`
	// SourcePatternID references the pattern that motivated the update
	SourcePatternID string `json:"source_pattern_id,omitempty"`
}

// KnowledgeEntry is a durable promoted pattern in the shared knowledge
// store: a best practice or an anti-pattern.
type KnowledgeEntry struct {
	// ID uniquely identifies this entry
	ID string `json:"id"`
	// Kind is "best_practice" or "anti_pattern"
	Kind string `json:"kind"`
	// Title is a short label
	Title string `json:"title"`
	// Description explains the practice or pitfall
	Description string `json:"description"`
	// Context describes when the entry applies
	Context map[string]interface{} `json:"context,omitempty"`
	// Confidence is inherited from the promoted pattern
	Confidence float64 `json:"confidence"`
	// SourcePatternID references the pattern this entry was promoted from
	SourcePatternID string `json:"source_pattern_id,omitempty"`
	// CreatedAt is when the entry was promoted
	CreatedAt time.Time `json:"created_at"`
}
