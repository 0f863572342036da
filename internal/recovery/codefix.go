package recovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// fixGenerator produces candidate fixes for one class of error.
type fixGenerator struct {
	// keywords activate this generator when found in the error text
	keywords []string
	generate func(event *types.ErrorEvent) *types.CodeFix
}

// fixGenerators is keyed by the classes of failure the analyzer knows how
// to patch. Each produces a CodeFix with a confidence and estimated
// impact; candidates are applied in confidence order.
var fixGenerators = []fixGenerator{
	{
		keywords: []string{"syntax error", "unexpected token"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixPatch, "Correct the malformed statement near the reported location", 0.5, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"undefined", "not defined", "undeclared"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixLogic, "Declare or import the missing identifier before use", 0.6, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"type mismatch", "cannot convert", "incompatible type"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixLogic, "Insert an explicit conversion between the mismatched types", 0.55, types.ImpactMedium, e)
		},
	},
	{
		keywords: []string{"index out of range", "out of bounds"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixErrorHandling, "Add bounds checking before the index access", 0.75, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"key not found", "no such key", "missing key"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixErrorHandling, "Check map membership before lookup and supply a default", 0.7, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"nil pointer", "null reference", "attribute"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixErrorHandling, "Add a nil guard before dereferencing the value", 0.7, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"invalid value", "value error", "out of valid range"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixLogic, "Validate the input range before processing", 0.6, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"division by zero", "divide by zero"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixErrorHandling, "Guard the division against a zero denominator", 0.8, types.ImpactLow, e)
		},
	},
	{
		keywords: []string{"recursion", "stack overflow", "maximum depth"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixAlgorithmReplace, "Add a recursion depth guard or convert to iteration", 0.65, types.ImpactMedium, e)
		},
	},
	{
		keywords: []string{"out of memory", "memory exhausted", "allocation failed"},
		generate: func(e *types.ErrorEvent) *types.CodeFix {
			return newFix(types.FixResourceAdjustment, "Process data in smaller chunks to cut peak memory", 0.6, types.ImpactMedium, e)
		},
	},
}

func newFix(t types.FixType, desc string, confidence float64, impact types.ImpactLevel, e *types.ErrorEvent) *types.CodeFix {
	return &types.CodeFix{
		ID:          uuid.New().String(),
		Type:        t,
		Description: desc,
		Confidence:  confidence,
		Impact:      impact,
		RollbackInfo: fmt.Sprintf("revert change generated for event %s", e.ID),
	}
}

// CodeAnalyzer generates candidate code fixes for classified errors.
type CodeAnalyzer struct{}

// NewCodeAnalyzer creates a code analyzer.
func NewCodeAnalyzer() *CodeAnalyzer {
	return &CodeAnalyzer{}
}

// GenerateFixes returns candidate fixes for the event, highest confidence
// first. Unrecognized errors produce no candidates.
func (a *CodeAnalyzer) GenerateFixes(event *types.ErrorEvent) []*types.CodeFix {
	text := strings.ToLower(event.Message + " " + event.StackTrace)

	var fixes []*types.CodeFix
	for _, g := range fixGenerators {
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				fix := g.generate(event)
				fix.OriginalCode = event.CodeLocation
				fixes = append(fixes, fix)
				break
			}
		}
	}

	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Confidence > fixes[j].Confidence
	})
	return fixes
}

// Workspace abstracts the code location a fix is applied to. Real
// enforcement lives with the caller; tests use an in-memory workspace.
type Workspace interface {
	// Read returns the current code text at a location.
	Read(location string) (string, error)
	// Write replaces the code text at a location.
	Write(location, code string) error
	// Check runs the associated test or verification for the location.
	Check(ctx context.Context) error
}

// FixSink persists code fixes and their cumulative counters. Writes are
// fire-and-forget relative to the in-memory tally.
type FixSink interface {
	UpsertCodeFix(ctx context.Context, fix *types.CodeFix) error
}

// FixStats tallies cumulative per-fix success/failure counts. Counters
// only increase, never reset, across repeated applications.
type FixStats struct {
	mu        sync.Mutex
	successes map[string]int
	failures  map[string]int
}

// NewFixStats creates an empty tally.
func NewFixStats() *FixStats {
	return &FixStats{
		successes: make(map[string]int),
		failures:  make(map[string]int),
	}
}

// Counts returns the cumulative tallies for a fix ID.
func (fs *FixStats) Counts(fixID string) (successes, failures int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.successes[fixID], fs.failures[fixID]
}

func (fs *FixStats) record(fixID string, success bool) (int, int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if success {
		fs.successes[fixID]++
	} else {
		fs.failures[fixID]++
	}
	return fs.successes[fixID], fs.failures[fixID]
}

// Applier applies code fixes atomically: validate, back up, apply, test,
// and roll back on test failure. Outcomes are tallied per fix for future
// confidence adjustment; the verdict always comes from the real check,
// never a random draw.
type Applier struct {
	stats *FixStats
	sink  FixSink
}

// NewApplier creates a fix applier over the given tally. The sink may be
// nil.
func NewApplier(stats *FixStats, sink FixSink) *Applier {
	if stats == nil {
		stats = NewFixStats()
	}
	return &Applier{stats: stats, sink: sink}
}

// Stats exposes the tally for reporting.
func (ap *Applier) Stats() *FixStats { return ap.stats }

// ApplyFix stages the fix in the workspace, runs the associated check,
// and commits or rolls back based on the check result. The fix's
// cumulative counters are updated either way.
func (ap *Applier) ApplyFix(ctx context.Context, fix *types.CodeFix, location string, ws Workspace) error {
	if fix == nil {
		return fmt.Errorf("fix is required")
	}
	if ws == nil {
		return fmt.Errorf("workspace is required")
	}
	if fix.FixedCode == "" {
		ap.tally(ctx, fix, false)
		return fmt.Errorf("fix %s has no fixed code to apply", fix.ID)
	}

	// Back up the current state before touching anything.
	original, err := ws.Read(location)
	if err != nil {
		ap.tally(ctx, fix, false)
		return fmt.Errorf("failed to read original code: %w", err)
	}
	if original == fix.FixedCode {
		ap.tally(ctx, fix, false)
		return fmt.Errorf("fix %s is a no-op against current code", fix.ID)
	}

	if err := ws.Write(location, fix.FixedCode); err != nil {
		ap.tally(ctx, fix, false)
		return fmt.Errorf("failed to apply fix: %w", err)
	}

	if err := ws.Check(ctx); err != nil {
		// Test failed: restore the backup before reporting.
		if rbErr := ws.Write(location, original); rbErr != nil {
			ap.tally(ctx, fix, false)
			return fmt.Errorf("fix check failed (%v) and rollback failed: %w", err, rbErr)
		}
		ap.tally(ctx, fix, false)
		return fmt.Errorf("fix check failed, rolled back: %w", err)
	}

	ap.tally(ctx, fix, true)
	return nil
}

func (ap *Applier) tally(ctx context.Context, fix *types.CodeFix, success bool) {
	s, f := ap.stats.record(fix.ID, success)
	fix.SuccessCount = s
	fix.FailureCount = f
	if ap.sink != nil {
		if err := ap.sink.UpsertCodeFix(ctx, fix); err != nil {
			fmt.Printf("Recovery: failed to persist code fix %s: %v\n", fix.ID, err)
		}
	}
}
