package anomaly

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// trainBatchSize is how many accumulated samples trigger a retrain of the
// pattern-based detector.
const trainBatchSize = 100

// PatternDetector is the trained outlier detector. It accumulates metric
// vectors and periodically fits a per-dimension gaussian profile; points
// whose average dimension z-score exceeds the outlier threshold are
// flagged with confidence equal to the normalized outlier score. Before
// the first training it is inactive and contributes nothing.
type PatternDetector struct {
	mu sync.Mutex

	// dimensions is the fixed metric ordering used for vectors; learned
	// from the first sample and held stable afterwards
	dimensions []string

	// samples accumulated since the last training
	samples [][]float64

	// fitted model: per-dimension mean and stddev
	means   []float64
	stddevs []float64
	trained bool

	// outlierThreshold is the average z-score above which a point is an
	// outlier. Default: 2.5
	outlierThreshold float64
}

// NewPatternDetector creates an untrained pattern detector.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{outlierThreshold: 2.5}
}

// Name implements Detector.
func (d *PatternDetector) Name() string { return "pattern" }

// Trained reports whether the detector has fitted a model yet.
func (d *PatternDetector) Trained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained
}

// Detect scores the snapshot against the fitted profile, then records the
// sample and retrains when a full batch has accumulated.
func (d *PatternDetector) Detect(metrics map[string]float64) []*types.Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dimensions == nil {
		d.dimensions = make([]string, 0, len(metrics))
		for name := range metrics {
			d.dimensions = append(d.dimensions, name)
		}
		sort.Strings(d.dimensions)
	}

	vec := d.vectorLocked(metrics)

	var out []*types.Anomaly
	if d.trained {
		score, worst := d.scoreLocked(vec)
		if score > d.outlierThreshold {
			// Normalize: threshold maps to 0.5 confidence, 2x threshold to 1.0.
			confidence := math.Min(1.0, score/(2*d.outlierThreshold))
			out = append(out, &types.Anomaly{
				ID:              uuid.New().String(),
				Timestamp:       time.Now(),
				Type:            types.AnomalyPatternBased,
				Severity:        types.SeverityMedium,
				Description:     fmt.Sprintf("metric vector scored as outlier (score %.2f, dominant metric %s)", score, worst),
				AffectedMetrics: []string{worst},
				Confidence:      confidence,
				Deviation:       score,
			})
		}
	}

	d.samples = append(d.samples, vec)
	if len(d.samples) >= trainBatchSize {
		d.trainLocked()
		d.samples = d.samples[:0]
	}

	return out
}

func (d *PatternDetector) vectorLocked(metrics map[string]float64) []float64 {
	vec := make([]float64, len(d.dimensions))
	for i, name := range d.dimensions {
		vec[i] = metrics[name]
	}
	return vec
}

func (d *PatternDetector) trainLocked() {
	n := len(d.samples)
	if n == 0 {
		return
	}
	dims := len(d.dimensions)
	means := make([]float64, dims)
	stddevs := make([]float64, dims)

	for _, vec := range d.samples {
		for i := 0; i < dims && i < len(vec); i++ {
			means[i] += vec[i]
		}
	}
	for i := range means {
		means[i] /= float64(n)
	}
	for _, vec := range d.samples {
		for i := 0; i < dims && i < len(vec); i++ {
			diff := vec[i] - means[i]
			stddevs[i] += diff * diff
		}
	}
	for i := range stddevs {
		stddevs[i] = math.Sqrt(stddevs[i] / float64(n))
	}

	d.means = means
	d.stddevs = stddevs
	d.trained = true
	fmt.Printf("Anomaly: pattern detector trained on %d samples (%d dimensions)\n", n, dims)
}

// scoreLocked returns the average per-dimension z-score and the metric
// name contributing the largest deviation.
func (d *PatternDetector) scoreLocked(vec []float64) (float64, string) {
	var total float64
	var counted int
	worstIdx, worstZ := 0, -1.0
	for i := range d.dimensions {
		if i >= len(vec) || i >= len(d.means) {
			break
		}
		if d.stddevs[i] <= 0 {
			continue
		}
		z := math.Abs(vec[i]-d.means[i]) / d.stddevs[i]
		total += z
		counted++
		if z > worstZ {
			worstZ = z
			worstIdx = i
		}
	}
	if counted == 0 {
		return 0, ""
	}
	return total / float64(counted), d.dimensions[worstIdx]
}
