package anomaly

import (
	"testing"

	"github.com/havenops/remedy/internal/types"
)

func TestPatternDetectorInactiveBeforeTraining(t *testing.T) {
	d := NewPatternDetector()

	// Even an absurd snapshot is ignored until the first training batch.
	for i := 0; i < 50; i++ {
		anomalies := d.Detect(map[string]float64{"cpu_usage": 99999})
		if len(anomalies) != 0 {
			t.Fatalf("untrained detector emitted anomaly at sample %d", i)
		}
	}
	if d.Trained() {
		t.Error("detector should not train before a full batch")
	}
}

func TestPatternDetectorTrainsAfterBatch(t *testing.T) {
	d := NewPatternDetector()

	for i := 0; i < trainBatchSize; i++ {
		d.Detect(map[string]float64{
			"cpu_usage":    50 + float64(i%7),
			"memory_usage": 40 + float64(i%5),
		})
	}
	if !d.Trained() {
		t.Fatal("detector should be trained after a full batch")
	}

	// An in-profile point stays quiet.
	if got := d.Detect(map[string]float64{"cpu_usage": 52, "memory_usage": 41}); len(got) != 0 {
		t.Errorf("in-profile point flagged: %v", got[0].Description)
	}

	// A far-out point is flagged with bounded confidence.
	anomalies := d.Detect(map[string]float64{"cpu_usage": 500, "memory_usage": 400})
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 outlier anomaly, got %d", len(anomalies))
	}
	a := anomalies[0]
	if a.Type != types.AnomalyPatternBased {
		t.Errorf("wrong anomaly type %v", a.Type)
	}
	if a.Confidence <= 0 || a.Confidence > 1 {
		t.Errorf("confidence out of range: %.2f", a.Confidence)
	}
	if a.Deviation <= 2.5 {
		t.Errorf("outlier score should exceed the threshold, got %.2f", a.Deviation)
	}
}
