// Package anomaly detects deviations in system metrics and estimates
// failure probability. Rule-based and trained detectors sit behind one
// Detector interface and their outputs are unioned per tick.
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

// Detector examines a metric snapshot and reports zero or more anomalies.
// Detectors are independent; disabling or swapping one never touches the
// others.
type Detector interface {
	// Name returns the unique identifier for this detector.
	Name() string

	// Detect examines the snapshot and returns detected anomalies.
	Detect(metrics map[string]float64) []*types.Anomaly
}

// minStatSamples is the minimum rolling history required before the
// statistical detector emits anything for a metric.
const minStatSamples = 30

// StatisticalDetector flags a metric when its rolling z-score magnitude
// exceeds 3 (severity escalates to high above 4 sigma).
type StatisticalDetector struct {
	mu sync.Mutex

	// history holds rolling per-metric samples, bounded by windowSize
	history    map[string][]float64
	windowSize int
}

// NewStatisticalDetector creates a statistical detector with the given
// rolling window size (default 200).
func NewStatisticalDetector(windowSize int) *StatisticalDetector {
	if windowSize <= 0 {
		windowSize = 200
	}
	return &StatisticalDetector{
		history:    make(map[string][]float64),
		windowSize: windowSize,
	}
}

// Name implements Detector.
func (d *StatisticalDetector) Name() string { return "statistical" }

// Detect compares each metric against its rolling history and then
// appends the new sample. Metrics with fewer than 30 prior samples never
// produce an anomaly.
func (d *StatisticalDetector) Detect(metrics map[string]float64) []*types.Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*types.Anomaly
	for name, value := range metrics {
		hist := d.history[name]
		if len(hist) >= minStatSamples {
			mean, stddev := meanStddev(hist)
			if stddev > 0 {
				z := math.Abs(value-mean) / stddev
				if z > 3 {
					severity := types.SeverityMedium
					if z > 4 {
						severity = types.SeverityHigh
					}
					out = append(out, &types.Anomaly{
						ID:              uuid.New().String(),
						Timestamp:       time.Now(),
						Type:            types.AnomalyStatistical,
						Severity:        severity,
						Description:     fmt.Sprintf("%s deviates %.1f sigma from rolling mean %.2f", name, z, mean),
						AffectedMetrics: []string{name},
						Confidence:      math.Min(1.0, z/6.0),
						Deviation:       z,
						Context: map[string]interface{}{
							"value": value,
							"mean":  mean,
							"std":   stddev,
						},
					})
				}
			}
		}

		hist = append(hist, value)
		if len(hist) > d.windowSize {
			hist = hist[len(hist)-d.windowSize:]
		}
		d.history[name] = hist
	}

	sortAnomalies(out)
	return out
}

// SampleCount returns the current history length for a metric.
func (d *StatisticalDetector) SampleCount(metric string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history[metric])
}

// ThresholdDetector flags metrics that breach fixed ceilings. Breach
// severity is critical above 1.5x the threshold, else high.
type ThresholdDetector struct {
	thresholds map[string]float64
}

// DefaultThresholds returns the default per-metric ceilings.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		"cpu_usage":     80.0,
		"memory_usage":  80.0,
		"disk_usage":    85.0,
		"error_rate":    0.1,
		"response_time": 5000.0, // milliseconds
	}
}

// NewThresholdDetector creates a threshold detector. A nil thresholds map
// uses the defaults.
func NewThresholdDetector(thresholds map[string]float64) *ThresholdDetector {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &ThresholdDetector{thresholds: thresholds}
}

// Name implements Detector.
func (d *ThresholdDetector) Name() string { return "threshold" }

// Detect implements Detector.
func (d *ThresholdDetector) Detect(metrics map[string]float64) []*types.Anomaly {
	var out []*types.Anomaly
	for name, limit := range d.thresholds {
		value, ok := metrics[name]
		if !ok || value <= limit {
			continue
		}
		severity := types.SeverityHigh
		if value > limit*1.5 {
			severity = types.SeverityCritical
		}
		out = append(out, &types.Anomaly{
			ID:              uuid.New().String(),
			Timestamp:       time.Now(),
			Type:            types.AnomalyThreshold,
			Severity:        severity,
			Description:     fmt.Sprintf("%s=%.2f exceeds threshold %.2f", name, value, limit),
			AffectedMetrics: []string{name},
			Confidence:      1.0,
			Deviation:       value / limit,
			Context: map[string]interface{}{
				"value":     value,
				"threshold": limit,
			},
		})
	}
	sortAnomalies(out)
	return out
}

// CorrelationDetector flags semantically inconsistent metric pairs, such
// as saturated CPU alongside abnormally low memory, as medium-severity
// anomalies.
type CorrelationDetector struct{}

// NewCorrelationDetector creates a correlation detector.
func NewCorrelationDetector() *CorrelationDetector {
	return &CorrelationDetector{}
}

// Name implements Detector.
func (d *CorrelationDetector) Name() string { return "correlation" }

// Detect implements Detector.
func (d *CorrelationDetector) Detect(metrics map[string]float64) []*types.Anomaly {
	var out []*types.Anomaly

	cpu, hasCPU := metrics["cpu_usage"]
	mem, hasMem := metrics["memory_usage"]
	errRate, hasErr := metrics["error_rate"]
	respTime, hasResp := metrics["response_time"]

	if hasCPU && hasMem && cpu > 90 && mem < 10 {
		out = append(out, correlationAnomaly(
			fmt.Sprintf("cpu_usage=%.1f saturated while memory_usage=%.1f is abnormally low", cpu, mem),
			[]string{"cpu_usage", "memory_usage"}))
	}
	if hasErr && hasResp && errRate > 0.05 && respTime < 10 {
		out = append(out, correlationAnomaly(
			fmt.Sprintf("error_rate=%.3f elevated while response_time=%.1fms is implausibly fast", errRate, respTime),
			[]string{"error_rate", "response_time"}))
	}
	if hasCPU && hasResp && cpu < 5 && respTime > 10000 {
		out = append(out, correlationAnomaly(
			fmt.Sprintf("response_time=%.0fms extreme while cpu_usage=%.1f is idle", respTime, cpu),
			[]string{"cpu_usage", "response_time"}))
	}

	return out
}

func correlationAnomaly(desc string, affected []string) *types.Anomaly {
	return &types.Anomaly{
		ID:              uuid.New().String(),
		Timestamp:       time.Now(),
		Type:            types.AnomalyCorrelation,
		Severity:        types.SeverityMedium,
		Description:     desc,
		AffectedMetrics: affected,
		Confidence:      0.6,
		Deviation:       1.0,
	}
}

// Engine runs a set of detectors per tick and unions their output.
type Engine struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewEngine creates an engine over the given detectors.
func NewEngine(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// Register adds a detector to the engine.
func (e *Engine) Register(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors = append(e.detectors, d)
}

// Detect runs every detector on the snapshot. A detector panic is
// contained and reported as a skipped detector rather than taking down
// the monitoring loop.
func (e *Engine) Detect(metrics map[string]float64) []*types.Anomaly {
	e.mu.RLock()
	detectors := make([]Detector, len(e.detectors))
	copy(detectors, e.detectors)
	e.mu.RUnlock()

	var out []*types.Anomaly
	for _, d := range detectors {
		anomalies := detectSafe(d, metrics)
		out = append(out, anomalies...)
	}
	sortAnomalies(out)
	return out
}

func detectSafe(d Detector, metrics map[string]float64) (result []*types.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Anomaly: detector %s panicked: %v\n", d.Name(), r)
			result = nil
		}
	}()
	return d.Detect(metrics)
}

func meanStddev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(samples)))
}

// sortAnomalies orders most severe first, then by deviation, for stable
// downstream handling.
func sortAnomalies(anomalies []*types.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := anomalies[i].Severity.Rank(), anomalies[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return anomalies[i].Deviation > anomalies[j].Deviation
	})
}
