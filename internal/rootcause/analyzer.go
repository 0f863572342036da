// Package rootcause correlates an error event with preceding events and
// resource state to produce a ranked cause with fix suggestions.
package rootcause

import (
	"fmt"
	"strings"

	"github.com/havenops/remedy/internal/errstream"
	"github.com/havenops/remedy/internal/types"
)

// PatternSource supplies known recovery patterns for signature matching.
// This evidence source is best-effort: when no source is wired the
// pattern step is simply skipped and that evidence omitted.
type PatternSource interface {
	FindPattern(signature string) (*types.RecoveryPattern, bool)
}

// Analyzer produces root causes for error events.
type Analyzer struct {
	patterns PatternSource
	// lookback is how many preceding events are scanned for escalation
	lookback int
}

// Config holds analyzer configuration.
type Config struct {
	// Patterns is optional; nil disables pattern evidence.
	Patterns PatternSource
	// Lookback is the number of preceding events to scan. Default: 20
	Lookback int
}

// NewAnalyzer creates a root-cause analyzer.
func NewAnalyzer(cfg *Config) *Analyzer {
	if cfg == nil {
		cfg = &Config{}
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 20
	}
	return &Analyzer{patterns: cfg.Patterns, lookback: lookback}
}

// causePriority is the fixed keyword-priority list for primary-cause
// selection. Earlier entries win.
var causePriority = []string{
	"memory_pressure",
	"disk_exhaustion",
	"cpu_saturation",
	"network_failure",
	"permission_denied",
	"timeout",
	"logic_error",
}

// keyword rules over the error's own text. Factor label -> keywords.
var textFactors = []struct {
	factor   string
	keywords []string
}{
	{"memory_pressure", []string{"memory", "oom", "heap", "allocation"}},
	{"disk_exhaustion", []string{"disk", "no space", "write failed"}},
	{"cpu_saturation", []string{"cpu", "load average", "throttl"}},
	{"network_failure", []string{"network", "connection", "dns", "unreachable", "socket"}},
	{"permission_denied", []string{"permission", "access denied", "forbidden"}},
	{"timeout", []string{"timeout", "timed out", "deadline"}},
	{"recursion", []string{"recursion", "stack overflow", "maximum depth"}},
	{"null_reference", []string{"null", "nil pointer", "none"}},
	{"logic_error", []string{"index out of range", "assertion", "invariant", "unexpected value"}},
}

// static cause -> suggested fixes table.
var causeSuggestions = map[string][]string{
	"memory_pressure":   {"Reduce batch sizes", "Enable streaming processing", "Raise the memory limit"},
	"disk_exhaustion":   {"Rotate or purge logs", "Move temporary data to a larger volume"},
	"cpu_saturation":    {"Lower worker concurrency", "Profile and optimize hot paths"},
	"network_failure":   {"Add connection retries with backoff", "Verify upstream endpoints and DNS"},
	"permission_denied": {"Check credentials and file modes", "Run with the required role"},
	"timeout":           {"Raise the operation timeout", "Split the work into smaller units"},
	"logic_error":       {"Add input validation", "Review the failing branch with a unit test"},
}

// factor-specific suggestion extensions, appended after the primary
// cause's static suggestions.
var factorSuggestions = map[string]string{
	"timeout":        "Raise timeout limits and retry counts",
	"recursion":      "Add a recursion depth guard",
	"null_reference": "Add guard checks before dereferencing",
}

// Analyze produces a root cause for the event, using the preceding
// events for escalation evidence.
func (a *Analyzer) Analyze(event *types.ErrorEvent, preceding []*types.ErrorEvent) (*types.RootCause, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}

	var evidence []string
	var factors []string
	seen := make(map[string]bool)

	addFactor := func(f, ev string) {
		if !seen[f] {
			seen[f] = true
			factors = append(factors, f)
		}
		evidence = append(evidence, ev)
	}

	// Source 1: the error's own message and stack text.
	text := strings.ToLower(event.Message + " " + event.StackTrace)
	for _, tf := range textFactors {
		for _, kw := range tf.keywords {
			if strings.Contains(text, kw) {
				addFactor(tf.factor, fmt.Sprintf("message contains %q", kw))
				break
			}
		}
	}

	// Source 2: the resource snapshot attached to the error.
	hasSnapshot := event.Resources != nil
	if hasSnapshot {
		r := event.Resources
		if r.MemoryPercent > 85 {
			addFactor("memory_pressure", fmt.Sprintf("memory at %.0f%% when error occurred", r.MemoryPercent))
		}
		if r.DiskPercent > 90 {
			addFactor("disk_exhaustion", fmt.Sprintf("disk at %.0f%% when error occurred", r.DiskPercent))
		}
		if r.CPUPercent > 90 {
			addFactor("cpu_saturation", fmt.Sprintf("cpu at %.0f%% when error occurred", r.CPUPercent))
		}
	}

	// Source 3: recency and severity escalation in preceding events.
	if n := len(preceding); n > 0 {
		window := preceding
		if n > a.lookback {
			window = preceding[n-a.lookback:]
		}
		sameType := 0
		escalating := false
		prevRank := -1
		for _, p := range window {
			if p.Type == event.Type {
				sameType++
			}
			rank := p.Severity.Rank()
			if prevRank >= 0 && rank > prevRank {
				escalating = true
			}
			prevRank = rank
		}
		if sameType >= 3 {
			evidence = append(evidence, fmt.Sprintf("%d preceding events of the same type %s", sameType, event.Type))
		}
		if escalating {
			evidence = append(evidence, "severity escalated across preceding events")
		}
	}

	// Source 4: known recovery patterns by signature (best-effort).
	var similar []string
	if a.patterns != nil {
		sig := signatureFor(event)
		if pattern, ok := a.patterns.FindPattern(sig); ok {
			evidence = append(evidence, fmt.Sprintf("matches known pattern %s (seen %d times)", pattern.Signature, pattern.UsageCount))
			similar = append(similar, pattern.ID)
		}
	}

	primary := primaryCause(factors, event.Type)
	suggestions := suggestFixes(primary, factors)
	confidence := scoreConfidence(len(evidence), len(factors), event.StackTrace != "", hasSnapshot)

	return &types.RootCause{
		PrimaryCause:        primary,
		ContributingFactors: factors,
		Evidence:            evidence,
		Confidence:          confidence,
		SuggestedFixes:      suggestions,
		SimilarIncidents:    similar,
	}, nil
}

// primaryCause picks the highest-priority matched factor, falling back to
// a cause derived from the classified type.
func primaryCause(factors []string, errType types.ErrorType) string {
	matched := make(map[string]bool, len(factors))
	for _, f := range factors {
		matched[f] = true
	}
	for _, cause := range causePriority {
		if matched[cause] {
			return cause
		}
	}
	switch errType {
	case types.ErrorTypeTimeout:
		return "timeout"
	case types.ErrorTypeNetwork:
		return "network_failure"
	case types.ErrorTypePermission:
		return "permission_denied"
	case types.ErrorTypeResource:
		return "memory_pressure"
	case types.ErrorTypeLogic, types.ErrorTypeRuntime:
		return "logic_error"
	default:
		return "unknown"
	}
}

func suggestFixes(primary string, factors []string) []string {
	out := append([]string{}, causeSuggestions[primary]...)
	for _, f := range factors {
		if s, ok := factorSuggestions[f]; ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = append(out, "Collect more diagnostics and reproduce under tracing")
	}
	return out
}

// scoreConfidence weights evidence count, factor diversity, and presence
// of high-quality evidence (stack trace, resource snapshot).
func scoreConfidence(evidenceCount, factorCount int, hasStack, hasSnapshot bool) float64 {
	score := 0.2
	score += 0.1 * float64(min(evidenceCount, 4))
	score += 0.05 * float64(min(factorCount, 4))
	if hasStack {
		score += 0.1
	}
	if hasSnapshot {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func signatureFor(event *types.ErrorEvent) string {
	return errstream.Signature(event.Type, event.Message)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
