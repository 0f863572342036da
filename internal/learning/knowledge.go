package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// promote moves high-confidence success patterns into durable best
// practices and high-confidence failure patterns into anti-patterns.
// Promotion is idempotent per source pattern.
func (l *Learner) promote(patterns []*types.LearnedPattern) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]bool, len(l.knowledge))
	for _, k := range l.knowledge {
		existing[k.SourcePatternID] = true
	}

	for _, p := range patterns {
		if p.Confidence < l.cfg.PromoteConfidence || existing[p.ID] {
			continue
		}
		var kind, title string
		switch p.Type {
		case types.PatternSuccess, types.PatternEfficiency:
			kind = "best_practice"
			title = "Repeat: " + p.Description
		case types.PatternFailure, types.PatternAnti:
			kind = "anti_pattern"
			title = "Avoid: " + p.Description
		default:
			continue
		}
		l.knowledge = append(l.knowledge, &types.KnowledgeEntry{
			ID:              uuid.New().String(),
			Kind:            kind,
			Title:           title,
			Description:     p.Description,
			Context:         p.Conditions,
			Confidence:      p.Confidence,
			SourcePatternID: p.ID,
			CreatedAt:       time.Now(),
		})
	}
}

// Knowledge returns a snapshot of the knowledge store.
func (l *Learner) Knowledge() []*types.KnowledgeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.KnowledgeEntry, len(l.knowledge))
	copy(out, l.knowledge)
	return out
}

// TransferPackage is a context-filtered bundle of knowledge entries for a
// cooperating agent.
type TransferPackage struct {
	// GeneratedAt is when the package was assembled
	GeneratedAt time.Time `json:"generated_at"`
	// Filter echoes the context filter the package was built for
	Filter map[string]interface{} `json:"filter,omitempty"`
	// Entries are the matching knowledge entries
	Entries []*types.KnowledgeEntry `json:"entries"`
}

// Transfer assembles a knowledge package filtered to entries whose
// context is compatible with the requested filter. An empty filter
// returns everything.
func (l *Learner) Transfer(filter map[string]interface{}) *TransferPackage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pkg := &TransferPackage{GeneratedAt: time.Now(), Filter: filter}
	for _, k := range l.knowledge {
		if matchesFilter(k.Context, filter) {
			pkg.Entries = append(pkg.Entries, k)
		}
	}
	return pkg
}

func matchesFilter(entryCtx, filter map[string]interface{}) bool {
	for key, want := range filter {
		have, ok := entryCtx[key]
		if !ok || have != want {
			return false
		}
	}
	return true
}

// ProposeUpdates derives strategy updates from current patterns, ranked
// by expected improvement times confidence.
func (l *Learner) ProposeUpdates() []*types.StrategyUpdate {
	patterns := l.Patterns()

	var updates []*types.StrategyUpdate
	for _, p := range patterns {
		switch p.Type {
		case types.PatternEfficiency:
			updates = append(updates, &types.StrategyUpdate{
				ID:          uuid.New().String(),
				Kind:        types.UpdateExecutionParameters,
				Description: "Prefer the action sequence from an efficient cluster",
				Changes: map[string]interface{}{
					"preferred_actions": p.Actions,
				},
				ExpectedImprovement: clamp(p.Outcomes["avg_efficiency"] - 0.5),
				Confidence:          p.Confidence,
				SourcePatternID:     p.ID,
			})
		case types.PatternFailure:
			updates = append(updates, &types.StrategyUpdate{
				ID:          uuid.New().String(),
				Kind:        types.UpdatePromptParameters,
				Description: fmt.Sprintf("Steer away from conditions of a failing cluster (%d members)", len(p.SupportingExperiences)),
				Changes: map[string]interface{}{
					"avoid_conditions": p.Conditions,
				},
				ExpectedImprovement: clamp(1 - p.Outcomes["success_rate"] - 0.3),
				Confidence:          p.Confidence,
				SourcePatternID:     p.ID,
			})
		case types.PatternSuccess:
			if p.Outcomes["avg_resources"] > 0.8 {
				updates = append(updates, &types.StrategyUpdate{
					ID:          uuid.New().String(),
					Kind:        types.UpdateResourceAllocation,
					Description: "Raise resource allocation for a succeeding but resource-hungry cluster",
					Changes: map[string]interface{}{
						"resource_headroom": 1.25,
					},
					ExpectedImprovement: 0.2,
					Confidence:          p.Confidence,
					SourcePatternID:     p.ID,
				})
			}
		}
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].ExpectedImprovement*updates[i].Confidence >
			updates[j].ExpectedImprovement*updates[j].Confidence
	})
	return updates
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
