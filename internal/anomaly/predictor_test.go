package anomaly

import (
	"testing"
	"time"

	"github.com/havenops/remedy/internal/types"
)

func TestPredictHealthySnapshot(t *testing.T) {
	p := NewPredictor()

	fp := p.Predict(map[string]float64{
		"memory_usage": 40,
		"cpu_usage":    30,
		"disk_usage":   50,
		"error_rate":   0.01,
	})
	if fp.Probability != 0 {
		t.Errorf("healthy snapshot should score 0, got %.2f", fp.Probability)
	}
	if fp.Risk != types.RiskLow {
		t.Errorf("expected low risk, got %v", fp.Risk)
	}
	if fp.HasEstimate {
		t.Error("no time-to-failure estimate expected below 0.3 probability")
	}
	if fp.Confidence != 0.6 {
		t.Errorf("rule-only confidence should be 0.6, got %.2f", fp.Confidence)
	}
}

func TestPredictRuleWeights(t *testing.T) {
	p := NewPredictor()

	tests := []struct {
		name    string
		metrics map[string]float64
		want    float64
		risk    types.RiskLevel
	}{
		{
			"memory breach alone is already high risk",
			map[string]float64{"memory_usage": 95},
			0.60, types.RiskHigh,
		},
		{
			"cpu alone stays low",
			map[string]float64{"cpu_usage": 97},
			0.35, types.RiskLow,
		},
		{
			"cpu plus errors",
			map[string]float64{"cpu_usage": 97, "error_rate": 0.2},
			0.70, types.RiskHigh,
		},
		{
			"memory plus errors",
			map[string]float64{"memory_usage": 95, "error_rate": 0.2},
			0.95, types.RiskCritical,
		},
		{
			"everything on fire caps at 1",
			map[string]float64{
				"memory_usage": 99, "cpu_usage": 99, "disk_usage": 99,
				"error_rate": 0.5, "network_latency": 2000, "process_count": 900,
			},
			1.0, types.RiskCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := p.Predict(tt.metrics)
			if diff := fp.Probability - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("probability = %.2f, want %.2f", fp.Probability, tt.want)
			}
			if fp.Risk != tt.risk {
				t.Errorf("risk = %v, want %v", fp.Risk, tt.risk)
			}
		})
	}
}

func TestPredictMemorySpikeAloneIsHighRisk(t *testing.T) {
	p := NewPredictor()

	// A memory spike with every other metric healthy must still be
	// reported as high or critical.
	fp := p.Predict(map[string]float64{
		"memory_usage": 95,
		"cpu_usage":    30,
		"disk_usage":   50,
		"error_rate":   0,
	})
	if fp.Risk != types.RiskHigh && fp.Risk != types.RiskCritical {
		t.Errorf("memory spike scored risk %v (probability %.2f), want high or critical", fp.Risk, fp.Probability)
	}
	var found bool
	for _, f := range fp.Factors {
		if f == "High memory usage" {
			found = true
		}
	}
	if !found {
		t.Errorf("factors %v missing the memory contribution", fp.Factors)
	}
}

func TestPredictRiskBoundaries(t *testing.T) {
	tests := []struct {
		prob float64
		want types.RiskLevel
	}{
		{0.85, types.RiskCritical},
		{0.8, types.RiskCritical},
		{0.7, types.RiskHigh},
		{0.6, types.RiskHigh},
		{0.5, types.RiskMedium},
		{0.4, types.RiskMedium},
		{0.39, types.RiskLow},
		{0.0, types.RiskLow},
	}
	for _, tt := range tests {
		if got := types.RiskLevelForProbability(tt.prob); got != tt.want {
			t.Errorf("RiskLevelForProbability(%.2f) = %v, want %v", tt.prob, got, tt.want)
		}
	}
}

func TestPredictTimeToFailure(t *testing.T) {
	p := NewPredictor()

	// 90% memory fires the memory rule; 10% headroom at 5%/hr is 2 hours.
	fp := p.Predict(map[string]float64{"memory_usage": 90.1})
	if !fp.HasEstimate {
		t.Fatal("expected a time-to-failure estimate at 0.3 probability")
	}
	if fp.TimeToFailure > 2*time.Hour || fp.TimeToFailure < 90*time.Minute {
		t.Errorf("estimate %v outside expected range around 2h", fp.TimeToFailure)
	}
}

func TestPredictFactorsAndMitigations(t *testing.T) {
	p := NewPredictor()

	fp := p.Predict(map[string]float64{"memory_usage": 95, "error_rate": 0.3})
	if len(fp.Factors) != 2 {
		t.Fatalf("expected 2 factors, got %v", fp.Factors)
	}
	if len(fp.Mitigations) != len(fp.Factors) {
		t.Errorf("every factor needs a mitigation: %d vs %d", len(fp.Mitigations), len(fp.Factors))
	}
}

func TestClassifierJoinsAfterTraining(t *testing.T) {
	p := NewPredictor()

	if p.ClassifierReady() {
		t.Fatal("classifier should not be ready without history")
	}

	// Feed 25 labeled samples per class.
	for i := 0; i < 25; i++ {
		p.RecordOutcome(map[string]float64{"memory_usage": 30 + float64(i%5), "cpu_usage": 20}, false)
		p.RecordOutcome(map[string]float64{"memory_usage": 95 + float64(i%3), "cpu_usage": 90}, true)
	}
	if !p.ClassifierReady() {
		t.Fatal("classifier should be ready after 25 samples per class")
	}

	// A snapshot near the failure centroid now raises confidence and
	// pulls the probability toward the classifier's verdict.
	fp := p.Predict(map[string]float64{"memory_usage": 96, "cpu_usage": 91})
	if fp.Confidence != 0.8 {
		t.Errorf("trained confidence should be 0.8, got %.2f", fp.Confidence)
	}
	if fp.Probability < 0.6 {
		t.Errorf("failure-like snapshot should score high, got %.2f", fp.Probability)
	}

	// A clearly healthy snapshot scores low even with the classifier on.
	fp = p.Predict(map[string]float64{"memory_usage": 31, "cpu_usage": 21})
	if fp.Probability > 0.2 {
		t.Errorf("healthy snapshot should score low, got %.2f", fp.Probability)
	}
}
