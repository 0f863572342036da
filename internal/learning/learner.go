// Package learning clusters past experiences into success, failure, and
// efficiency patterns, proposes strategy updates, and promotes durable
// knowledge for sharing with cooperating agents.
package learning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// minClusterSupport is the minimum cluster size that yields a pattern.
const minClusterSupport = 2

// ExperienceSink persists experiences; writes are fire-and-forget
// relative to in-memory state.
type ExperienceSink interface {
	StoreExperience(ctx context.Context, exp *types.Experience) error
}

// Config holds learner configuration.
type Config struct {
	// ProcessEvery triggers clustering after this many recorded
	// experiences. Default: 20
	ProcessEvery int
	// Eps is the DBSCAN neighborhood radius. Default: 0.8
	Eps float64
	// PromoteConfidence is the pattern confidence needed for promotion
	// into the knowledge store. Default: 0.7
	PromoteConfidence float64
	// MaxExperiences bounds the in-memory experience window. Default: 500
	MaxExperiences int
}

// DefaultConfig returns default learner configuration.
func DefaultConfig() *Config {
	return &Config{
		ProcessEvery:      20,
		Eps:               0.8,
		PromoteConfidence: 0.7,
		MaxExperiences:    500,
	}
}

// Learner owns the experience store and derived patterns. Only the
// learner's own task writes; other tasks read snapshots.
type Learner struct {
	mu sync.RWMutex

	cfg  *Config
	sink ExperienceSink

	experiences []*types.Experience
	sinceCluster int

	patterns  []*types.LearnedPattern
	knowledge []*types.KnowledgeEntry
}

// NewLearner creates a learner. The sink may be nil.
func NewLearner(cfg *Config, sink ExperienceSink) *Learner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ProcessEvery <= 0 {
		cfg.ProcessEvery = 20
	}
	if cfg.Eps <= 0 {
		cfg.Eps = 0.8
	}
	if cfg.PromoteConfidence <= 0 {
		cfg.PromoteConfidence = 0.7
	}
	if cfg.MaxExperiences <= 0 {
		cfg.MaxExperiences = 500
	}
	return &Learner{cfg: cfg, sink: sink}
}

// Record adds one experience and runs a clustering pass when a full batch
// has accumulated.
func (l *Learner) Record(ctx context.Context, exp *types.Experience) {
	if exp == nil {
		return
	}
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.experiences = append(l.experiences, exp)
	if len(l.experiences) > l.cfg.MaxExperiences {
		l.experiences = l.experiences[len(l.experiences)-l.cfg.MaxExperiences:]
	}
	l.sinceCluster++
	shouldProcess := l.sinceCluster >= l.cfg.ProcessEvery
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.StoreExperience(ctx, exp); err != nil {
			fmt.Printf("Learning: failed to persist experience %s: %v\n", exp.ID, err)
		}
	}

	if shouldProcess {
		l.Process()
	}
}

// Process runs one clustering pass over the current experience window and
// replaces the derived patterns.
func (l *Learner) Process() {
	l.mu.Lock()
	experiences := make([]*types.Experience, len(l.experiences))
	copy(experiences, l.experiences)
	l.sinceCluster = 0
	l.mu.Unlock()

	patterns := derivePatterns(experiences, l.cfg.Eps)

	l.mu.Lock()
	l.patterns = patterns
	l.mu.Unlock()

	l.promote(patterns)
	fmt.Printf("Learning: clustering pass over %d experiences produced %d patterns\n", len(experiences), len(patterns))
}

// derivePatterns clusters experiences and summarizes each cluster of at
// least minClusterSupport members into a typed pattern.
func derivePatterns(experiences []*types.Experience, eps float64) []*types.LearnedPattern {
	if len(experiences) < minClusterSupport {
		return nil
	}

	vectors := make([][]float64, len(experiences))
	for i, e := range experiences {
		vectors[i] = featureVector(e)
	}
	labels := dbscan(vectors, eps, minClusterSupport)

	var patterns []*types.LearnedPattern
	for _, members := range clustersOf(labels) {
		if len(members) < minClusterSupport {
			continue
		}
		cluster := make([]*types.Experience, len(members))
		for i, idx := range members {
			cluster[i] = experiences[idx]
		}
		if p := summarize(cluster); p != nil {
			patterns = append(patterns, p)
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})
	return patterns
}

// summarize derives one pattern from a cluster: the pattern type follows
// the cluster's success rate and efficiency, conditions are the most
// common context values, actions the most common action per position,
// outcomes the per-cluster metric averages.
func summarize(cluster []*types.Experience) *types.LearnedPattern {
	n := len(cluster)
	var successes int
	var avgTime, avgAccuracy, avgEfficiency, avgResources float64
	for _, e := range cluster {
		if e.Success {
			successes++
		}
		avgTime += e.ExecutionTime.Seconds()
		avgAccuracy += e.Accuracy
		avgEfficiency += e.Efficiency
		avgResources += e.ResourceUsage
	}
	successRate := float64(successes) / float64(n)
	avgTime /= float64(n)
	avgAccuracy /= float64(n)
	avgEfficiency /= float64(n)
	avgResources /= float64(n)

	var ptype types.PatternType
	var desc string
	switch {
	case successRate >= 0.8 && avgEfficiency >= 0.7:
		ptype = types.PatternEfficiency
		desc = fmt.Sprintf("%d similar executions succeeded efficiently (%.0f%% success, %.2f efficiency)", n, successRate*100, avgEfficiency)
	case successRate >= 0.8:
		ptype = types.PatternSuccess
		desc = fmt.Sprintf("%d similar executions succeeded (%.0f%% success rate)", n, successRate*100)
	case successRate <= 0.3:
		ptype = types.PatternFailure
		desc = fmt.Sprintf("%d similar executions failed (%.0f%% success rate)", n, successRate*100)
	default:
		// Mixed clusters carry no usable signal.
		return nil
	}

	ids := make([]string, n)
	for i, e := range cluster {
		ids[i] = e.ID
	}

	return &types.LearnedPattern{
		ID:          uuid.New().String(),
		Type:        ptype,
		Description: desc,
		Conditions:  commonConditions(cluster),
		Actions:     commonActions(cluster),
		Outcomes: map[string]float64{
			"success_rate":     successRate,
			"avg_time_seconds": avgTime,
			"avg_accuracy":     avgAccuracy,
			"avg_efficiency":   avgEfficiency,
			"avg_resources":    avgResources,
		},
		// Confidence bounded by cluster size and success-rate clarity.
		Confidence:            patternConfidence(n, successRate),
		SupportingExperiences: ids,
		CreatedAt:             time.Now(),
	}
}

// patternConfidence grows with cluster size and with distance of the
// success rate from the uninformative 0.5.
func patternConfidence(size int, successRate float64) float64 {
	sizeTerm := float64(size) / 10.0
	if sizeTerm > 1 {
		sizeTerm = 1
	}
	clarity := 2 * (successRate - 0.5)
	if clarity < 0 {
		clarity = -clarity
	}
	c := 0.5*sizeTerm + 0.5*clarity
	if c > 1 {
		c = 1
	}
	return c
}

// commonConditions extracts the most frequent value per context key
// across the cluster, keeping keys present in a majority of members.
func commonConditions(cluster []*types.Experience) map[string]interface{} {
	counts := make(map[string]map[interface{}]int)
	for _, e := range cluster {
		for k, v := range e.Context {
			if counts[k] == nil {
				counts[k] = make(map[interface{}]int)
			}
			counts[k][v]++
		}
	}

	out := make(map[string]interface{})
	majority := len(cluster)/2 + 1
	for key, values := range counts {
		var bestVal interface{}
		best := 0
		for v, c := range values {
			if c > best {
				best = c
				bestVal = v
			}
		}
		if best >= majority {
			out[key] = bestVal
		}
	}
	return out
}

// commonActions extracts the most common action at each sequence
// position, up to the median action-list length.
func commonActions(cluster []*types.Experience) []string {
	lengths := make([]int, len(cluster))
	for i, e := range cluster {
		lengths[i] = len(e.Actions)
	}
	sort.Ints(lengths)
	limit := lengths[len(lengths)/2]

	var out []string
	for pos := 0; pos < limit; pos++ {
		counts := make(map[string]int)
		for _, e := range cluster {
			if pos < len(e.Actions) {
				counts[e.Actions[pos]]++
			}
		}
		var bestAction string
		best := 0
		for action, c := range counts {
			if c > best {
				best = c
				bestAction = action
			}
		}
		if bestAction != "" {
			out = append(out, bestAction)
		}
	}
	return out
}

// Patterns returns a snapshot of the current derived patterns.
func (l *Learner) Patterns() []*types.LearnedPattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.LearnedPattern, len(l.patterns))
	copy(out, l.patterns)
	return out
}

// ExperienceCount returns the size of the in-memory experience window.
func (l *Learner) ExperienceCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.experiences)
}
