package types

import "time"

// HealingState is the orchestrator's health state machine state.
type HealingState string

const (
	StateHealthy    HealingState = "healthy"
	StateMonitoring HealingState = "monitoring"
	StateDetecting  HealingState = "detecting"
	StateRecovering HealingState = "recovering"
	StateEscalating HealingState = "escalating"
	StateDegraded   HealingState = "degraded"
	StateFailed     HealingState = "failed"
)

// TriggerType identifies what condition caused an intervention.
type TriggerType string

const (
	TriggerErrorThreshold  TriggerType = "error_threshold"
	TriggerAnomaly         TriggerType = "anomaly_detected"
	TriggerFailurePredict  TriggerType = "failure_prediction"
	TriggerPerformance     TriggerType = "performance_degradation"
	TriggerHealthDegraded  TriggerType = "health_degraded"
	TriggerManual          TriggerType = "manual"
)

// SystemHealth is the aggregate health state, recomputed on every
// monitoring tick.
type SystemHealth struct {
	// OverallScore is the aggregate health score in 0.0-1.0
	OverallScore float64 `json:"overall_score"`
	// ComponentScores maps component name to its health score
	ComponentScores map[string]float64 `json:"component_scores,omitempty"`
	// RecentErrorCount is the number of errors in the recent window
	RecentErrorCount int `json:"recent_error_count"`
	// ErrorRate is errors per second over the recent window
	ErrorRate float64 `json:"error_rate"`
	// Metrics is the latest raw metric snapshot
	Metrics map[string]float64 `json:"metrics,omitempty"`
	// Prediction is the latest failure prediction, if any
	Prediction *FailureProbability `json:"prediction,omitempty"`
	// Timestamp is when this health snapshot was computed
	Timestamp time.Time `json:"timestamp"`
}

// Intervention is a queued request for the healing consumer.
type Intervention struct {
	// ID uniquely identifies this intervention
	ID string `json:"id"`
	// Trigger is what condition warranted intervention
	Trigger TriggerType `json:"trigger"`
	// Priority orders interventions in the queue; higher runs first
	Priority int `json:"priority"`
	// QueuedAt is when the intervention was enqueued
	QueuedAt time.Time `json:"queued_at"`
	// Health is the health snapshot at enqueue time
	Health *SystemHealth `json:"health,omitempty"`
	// Anomalies are the anomalies observed on the triggering tick
	Anomalies []*Anomaly `json:"anomalies,omitempty"`
	// Errors are the recent error events relevant to the trigger
	Errors []*ErrorEvent `json:"errors,omitempty"`
	// Context carries free-form trigger context
	Context map[string]interface{} `json:"context,omitempty"`
}

// HealingSession is one full detection-through-recovery episode, bounded
// by an intervention being queued and resolved.
type HealingSession struct {
	// ID uniquely identifies this session
	ID string `json:"id"`
	// StartTime is when the session opened
	StartTime time.Time `json:"start_time"`
	// EndTime is when the session closed (zero while active)
	EndTime time.Time `json:"end_time,omitempty"`
	// Trigger is the condition that opened the session
	Trigger TriggerType `json:"trigger"`
	// InitialState is the system snapshot at open
	InitialState *SystemHealth `json:"initial_state,omitempty"`
	// FinalState is the system snapshot at close
	FinalState *SystemHealth `json:"final_state,omitempty"`
	// Errors are the error events observed during the episode
	Errors []*ErrorEvent `json:"errors,omitempty"`
	// Anomalies are the anomalies observed during the episode
	Anomalies []*Anomaly `json:"anomalies,omitempty"`
	// Recoveries is the sequence of recovery results attempted
	Recoveries []*RecoveryResult `json:"recoveries,omitempty"`
	// Success indicates the overall episode outcome
	Success bool `json:"success"`
	// Lessons is free-text takeaways recorded at close
	Lessons string `json:"lessons,omitempty"`
}
