// Package selection reconciles candidate test sets into the final ordered
// selection.
package selection

import (
	"sort"

	"tsel/internal/history"
	"tsel/internal/logging"
)

// Provenance records which strategy proposed a candidate.
type Provenance string

const (
	// Direct means the changed file is itself a test file.
	Direct Provenance = "direct"
	// StaticMatch means textual symbol matching selected the test.
	StaticMatch Provenance = "static-match"
	// AISuggested means the suggestion oracle proposed the test.
	AISuggested Provenance = "ai-suggested"
)

// Candidate is one proposed test file with its selection reason.
type Candidate struct {
	Path       string     `json:"path"`
	Provenance Provenance `json:"provenance"`
	Reason     string     `json:"reason,omitempty"`
}

// Result is the deduplicated, capped, ordered selection.
type Result struct {
	Tests []Candidate `json:"tests"`
	// Truncated is how many candidates the cap dropped.
	Truncated int `json:"truncated,omitempty"`
}

// Paths returns the selected test paths in order.
func (r Result) Paths() []string {
	out := make([]string, len(r.Tests))
	for i, t := range r.Tests {
		out[i] = t.Path
	}
	return out
}

// Policy decides how oracle output combines with an oversized static match.
type Policy string

const (
	// Replace discards the static set in favor of the oracle's when the
	// static set exceeded the upper bound.
	Replace Policy = "replace"
	// Augment unions the oracle's set into the static set.
	Augment Policy = "augment"
)

// Scorer exposes the slice of history needed for priority ordering.
type Scorer interface {
	// Record returns the history record for a test path, or nil if the
	// test has never run.
	Record(testPath string) *history.Record
}

// Reconciler merges candidate sets, deduplicates, caps, and orders them.
type Reconciler struct {
	maxTests   int
	prioritize bool
	scorer     Scorer
	logger     *logging.Logger
}

// NewReconciler creates a reconciler. scorer may be nil, in which case
// ordering falls back to lexicographic.
func NewReconciler(maxTests int, prioritize bool, scorer Scorer, logger *logging.Logger) *Reconciler {
	if maxTests <= 0 {
		maxTests = 8
	}
	return &Reconciler{
		maxTests:   maxTests,
		prioritize: prioritize,
		scorer:     scorer,
		logger:     logger.With(map[string]interface{}{"component": "selection"}),
	}
}

// Reconcile merges the candidate sets in order, keeping the first
// provenance seen for a path, then orders and caps the result.
// Ordering is deterministic: priority score descending when history is
// available, path ascending otherwise and as tiebreak.
func (r *Reconciler) Reconcile(sets ...[]Candidate) Result {
	seen := make(map[string]bool)
	merged := make([]Candidate, 0)
	for _, set := range sets {
		for _, c := range set {
			if seen[c.Path] {
				continue
			}
			seen[c.Path] = true
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		si, sj := r.score(merged[i].Path), r.score(merged[j].Path)
		if si != sj {
			return si > sj
		}
		return merged[i].Path < merged[j].Path
	})

	truncated := 0
	if len(merged) > r.maxTests {
		truncated = len(merged) - r.maxTests
		r.logger.Info("selection capped", map[string]interface{}{
			"candidates": len(merged),
			"cap":        r.maxTests,
		})
		merged = merged[:r.maxTests]
	}

	return Result{Tests: merged, Truncated: truncated}
}

// score implements the historical priority heuristic: recently failing
// tests first, with a modest bonus for fast tests. Unknown tests sit in
// the middle so new tests neither jump the queue nor starve.
func (r *Reconciler) score(path string) float64 {
	if !r.prioritize || r.scorer == nil {
		return 0
	}
	rec := r.scorer.Record(path)
	if rec == nil {
		return 50
	}

	score := float64(rec.RecentFailures) * 20
	avg := rec.AvgSeconds()
	if avg < 1 {
		avg = 1
	}
	bonus := 60 / avg
	if bonus > 30 {
		bonus = 30
	}
	return score + bonus
}
