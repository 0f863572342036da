package anomaly

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/havenops/remedy/internal/types"
)

// ruleWeight is one deterministic contribution to the failure score.
type ruleWeight struct {
	metric    string
	threshold float64
	weight    float64
	factor    string
	mitigation string
}

// Memory exhaustion is the fastest path to a hard crash, so its breach
// alone must already land in high risk; the other rules stack on top.
var failureRules = []ruleWeight{
	{"memory_usage", 90, 0.60, "High memory usage", "Reduce batch sizes or restart memory-heavy workers"},
	{"cpu_usage", 95, 0.35, "CPU saturation", "Shed load or raise CPU allocation"},
	{"disk_usage", 95, 0.30, "Disk nearly full", "Purge caches and rotate logs"},
	{"error_rate", 0.1, 0.35, "Elevated error rate", "Investigate recent errors and enable degraded mode"},
	{"network_latency", 1000, 0.20, "Network latency spike", "Check upstream connectivity and raise timeouts"},
	{"process_count", 500, 0.15, "Process count runaway", "Cap worker spawning and reap zombies"},
}

// minClassifierSamples is how much labeled history the trained classifier
// needs, per class, before it participates.
const minClassifierSamples = 25

// Predictor estimates failure probability from a metric snapshot. A
// deterministic rule scorer always runs; a nearest-centroid classifier
// joins in once enough labeled history has accumulated, and the two
// probabilities are averaged.
type Predictor struct {
	mu sync.Mutex

	dimensions []string

	// labeled history for the trained classifier
	healthy  [][]float64
	failed   [][]float64
	centroid struct {
		healthy []float64
		failed  []float64
		ready   bool
	}
}

// NewPredictor creates a failure predictor.
func NewPredictor() *Predictor {
	return &Predictor{}
}

// Predict computes the failure probability for a snapshot.
func (p *Predictor) Predict(metrics map[string]float64) *types.FailureProbability {
	prob, factors, mitigations := ruleScore(metrics)
	confidence := 0.6

	p.mu.Lock()
	if p.centroid.ready {
		if mlProb, ok := p.classifyLocked(metrics); ok {
			prob = (prob + mlProb) / 2
			confidence = 0.8
		}
	}
	p.mu.Unlock()

	fp := &types.FailureProbability{
		Probability: prob,
		Factors:     factors,
		Confidence:  confidence,
		Mitigations: mitigations,
		Risk:        types.RiskLevelForProbability(prob),
	}

	if prob >= 0.3 {
		if ttf, ok := timeToFailure(metrics); ok {
			fp.TimeToFailure = ttf
			fp.HasEstimate = true
		}
	}

	return fp
}

// RecordOutcome feeds a labeled sample into the classifier history.
// failed should be true when the snapshot preceded an actual failure.
func (p *Predictor) RecordOutcome(metrics map[string]float64, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dimensions == nil {
		p.dimensions = make([]string, 0, len(metrics))
		for name := range metrics {
			p.dimensions = append(p.dimensions, name)
		}
		sort.Strings(p.dimensions)
	}

	vec := make([]float64, len(p.dimensions))
	for i, name := range p.dimensions {
		vec[i] = metrics[name]
	}

	if failed {
		p.failed = append(p.failed, vec)
	} else {
		p.healthy = append(p.healthy, vec)
	}

	if len(p.failed) >= minClassifierSamples && len(p.healthy) >= minClassifierSamples {
		p.fitLocked()
	}
}

// ClassifierReady reports whether the trained classifier participates.
func (p *Predictor) ClassifierReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.centroid.ready
}

func (p *Predictor) fitLocked() {
	p.centroid.healthy = centroidOf(p.healthy, len(p.dimensions))
	p.centroid.failed = centroidOf(p.failed, len(p.dimensions))
	if !p.centroid.ready {
		fmt.Printf("Predictor: failure classifier trained (healthy=%d failed=%d)\n", len(p.healthy), len(p.failed))
	}
	p.centroid.ready = true
}

// classifyLocked returns the probability that the snapshot resembles the
// failure centroid more than the healthy one.
func (p *Predictor) classifyLocked(metrics map[string]float64) (float64, bool) {
	vec := make([]float64, len(p.dimensions))
	for i, name := range p.dimensions {
		vec[i] = metrics[name]
	}
	dh := distance(vec, p.centroid.healthy)
	df := distance(vec, p.centroid.failed)
	if dh+df == 0 {
		return 0, false
	}
	return dh / (dh + df), true
}

func centroidOf(samples [][]float64, dims int) []float64 {
	c := make([]float64, dims)
	if len(samples) == 0 {
		return c
	}
	for _, vec := range samples {
		for i := 0; i < dims && i < len(vec); i++ {
			c[i] += vec[i]
		}
	}
	for i := range c {
		c[i] /= float64(len(samples))
	}
	return c
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		if i >= len(b) {
			break
		}
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ruleScore adds weighted probability mass per breached rule, capped at 1.
func ruleScore(metrics map[string]float64) (float64, []string, []string) {
	var prob float64
	var factors, mitigations []string
	for _, rule := range failureRules {
		value, ok := metrics[rule.metric]
		if !ok || value <= rule.threshold {
			continue
		}
		prob += rule.weight
		factors = append(factors, rule.factor)
		mitigations = append(mitigations, rule.mitigation)
	}
	if prob > 1.0 {
		prob = 1.0
	}
	return prob, factors, mitigations
}

// assumedDegradationRate is the assumed resource climb in percent per
// hour used by the exhaustion heuristic.
const assumedDegradationRate = 5.0

// timeToFailure estimates hours until the most constrained resource is
// exhausted, assuming a fixed degradation rate.
func timeToFailure(metrics map[string]float64) (time.Duration, bool) {
	headroom := math.Inf(1)
	for _, name := range []string{"memory_usage", "disk_usage", "cpu_usage"} {
		if value, ok := metrics[name]; ok {
			if h := 100 - value; h < headroom {
				headroom = h
			}
		}
	}
	if math.IsInf(headroom, 1) {
		return 0, false
	}
	if headroom < 0 {
		headroom = 0
	}
	hours := headroom / assumedDegradationRate
	return time.Duration(hours * float64(time.Hour)), true
}
