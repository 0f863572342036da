package types

import "time"

// AnomalyType categorizes how a metric deviation was detected.
type AnomalyType string

const (
	AnomalyStatistical  AnomalyType = "statistical"
	AnomalyPatternBased AnomalyType = "pattern_based"
	AnomalyThreshold    AnomalyType = "threshold_breach"
	AnomalyCorrelation  AnomalyType = "correlation"
	AnomalySequence     AnomalyType = "sequence"
)

// Anomaly is a detected deviation in one or more metrics at a point in
// time. Produced by a detector, never mutated.
type Anomaly struct {
	// ID uniquely identifies this anomaly
	ID string `json:"id"`
	// Timestamp is when the anomaly was detected
	Timestamp time.Time `json:"timestamp"`
	// Type indicates which detector produced it
	Type AnomalyType `json:"anomaly_type"`
	// Severity indicates how critical the deviation is
	Severity Severity `json:"severity"`
	// Description summarizes what was detected
	Description string `json:"description"`
	// AffectedMetrics lists the metric names involved
	AffectedMetrics []string `json:"affected_metrics"`
	// Confidence is the detector's confidence in 0.0-1.0
	Confidence float64 `json:"confidence"`
	// Deviation is the magnitude of the deviation (detector-specific units,
	// e.g. z-score for statistical, ratio-over-threshold for threshold)
	Deviation float64 `json:"deviation"`
	// Context carries free-form detector context
	Context map[string]interface{} `json:"context,omitempty"`
}

// RiskLevel buckets a failure probability.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// RiskLevelForProbability maps a probability to a risk level using the
// fixed thresholds: critical >=0.8, high >=0.6, medium >=0.4, else low.
func RiskLevelForProbability(p float64) RiskLevel {
	switch {
	case p >= 0.8:
		return RiskCritical
	case p >= 0.6:
		return RiskHigh
	case p >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FailureProbability is a prediction of impending failure. Recomputed on
// every health check; logged but not persisted as a first-class entity.
type FailureProbability struct {
	// Probability is the estimated failure probability in 0.0-1.0
	Probability float64 `json:"probability"`
	// TimeToFailure is the estimated time until failure, if estimable
	TimeToFailure time.Duration `json:"time_to_failure,omitempty"`
	// HasEstimate indicates whether TimeToFailure is meaningful
	HasEstimate bool `json:"has_estimate"`
	// Factors lists the contributing factor labels
	Factors []string `json:"factors"`
	// Confidence indicates how confident the predictor is in 0.0-1.0
	Confidence float64 `json:"confidence"`
	// Mitigations lists suggested preventive actions
	Mitigations []string `json:"mitigations"`
	// Risk is the derived risk level
	Risk RiskLevel `json:"risk"`
}
