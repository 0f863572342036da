package healing

import (
	"time"

	"github.com/havenops/remedy/internal/types"
)

// componentWeights used to aggregate per-component scores into the
// overall health score.
var componentWeights = map[string]float64{
	"cpu":            0.2,
	"memory":         0.25,
	"disk":           0.15,
	"errors":         0.25,
	"responsiveness": 0.15,
}

// computeHealth turns a metric snapshot and recent error stats into a
// SystemHealth. Each component maps its metric to a 0-1 score where 1 is
// fully healthy.
func computeHealth(metrics map[string]float64, recentErrors int, errorRate float64, prediction *types.FailureProbability) *types.SystemHealth {
	components := map[string]float64{
		"cpu":            usageScore(metrics["cpu_usage"]),
		"memory":         usageScore(metrics["memory_usage"]),
		"disk":           usageScore(metrics["disk_usage"]),
		"errors":         errorScore(errorRate, metrics["critical_errors"]),
		"responsiveness": responseScore(metrics["response_time"]),
	}

	var overall, totalWeight float64
	for name, score := range components {
		w := componentWeights[name]
		overall += score * w
		totalWeight += w
	}
	if totalWeight > 0 {
		overall /= totalWeight
	}

	return &types.SystemHealth{
		OverallScore:     overall,
		ComponentScores:  components,
		RecentErrorCount: recentErrors,
		ErrorRate:        errorRate,
		Metrics:          metrics,
		Prediction:       prediction,
		Timestamp:        time.Now(),
	}
}

// usageScore maps a 0-100 utilization to a health score: 1.0 until 50%,
// then linear decay to 0 at 100%.
func usageScore(usage float64) float64 {
	switch {
	case usage <= 50:
		return 1.0
	case usage >= 100:
		return 0.0
	default:
		return (100 - usage) / 50
	}
}

// errorScore decays with error rate and collapses when critical errors
// are present.
func errorScore(errorRate, criticalErrors float64) float64 {
	score := 1.0 - errorRate*5 // 0.2 errors/s zeroes the score
	if score < 0 {
		score = 0
	}
	if criticalErrors > 0 {
		score *= 0.5
	}
	return score
}

// responseScore maps response time in milliseconds to a health score:
// 1.0 under 500ms, 0 at 10s.
func responseScore(responseMs float64) float64 {
	switch {
	case responseMs <= 500:
		return 1.0
	case responseMs >= 10000:
		return 0.0
	default:
		return (10000 - responseMs) / 9500
	}
}

// deriveState maps a health snapshot to the healing state machine,
// honoring the degraded/failed floors which override everything else.
func deriveState(current types.HealingState, health *types.SystemHealth, degradedFloor, failedFloor float64) types.HealingState {
	score := health.OverallScore
	if score < failedFloor {
		return types.StateFailed
	}
	if score < degradedFloor {
		return types.StateDegraded
	}
	// Recovering/escalating are driven by the consumer, not the score.
	if current == types.StateRecovering || current == types.StateEscalating {
		return current
	}
	if score >= 0.9 {
		return types.StateHealthy
	}
	return types.StateMonitoring
}
