// Package pipeline orchestrates the selection phases: change detection,
// symbol delta extraction, usage expansion, static matching, oracle
// fallback, and reconciliation. Phases run sequentially; each completes
// before the next starts.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"tsel/internal/config"
	"tsel/internal/delta"
	"tsel/internal/gitio"
	"tsel/internal/logging"
	"tsel/internal/match"
	"tsel/internal/oracle"
	"tsel/internal/selection"
	"tsel/internal/usage"
)

// DiffSource is the version-control boundary.
type DiffSource interface {
	IsAvailable(ctx context.Context) bool
	Head(ctx context.Context) (string, error)
	ChangedFiles(ctx context.Context, baseOverride string) gitio.ChangeSet
	Diff(ctx context.Context, base, file string) string
}

// SuggestionClient is the untrusted LLM suggestion boundary.
type SuggestionClient interface {
	Suggest(ctx context.Context, req oracle.Request) oracle.Suggestion
}

// HistoryStore is the slice of the history store the pipeline consumes.
type HistoryStore interface {
	selection.Scorer
	RecentlyFailing(limit int) []string
	CachedSelection(commit string) ([]byte, bool)
	SaveSelection(commit string, payload []byte) error
}

// CorpusLister enumerates candidate test files.
type CorpusLister func(ctx context.Context) ([]string, error)

// Info reports what the selection phase observed, for output and exit-code
// decisions.
type Info struct {
	Commit       string   `json:"commit,omitempty"`
	Base         string   `json:"base,omitempty"`
	CacheHit     bool     `json:"cacheHit,omitempty"`
	NoChanges    bool     `json:"noChanges,omitempty"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	Functions    []string `json:"functions,omitempty"`
	Locators     []string `json:"locators,omitempty"`
	Expanded     []string `json:"expanded,omitempty"`
	CorpusSize   int      `json:"corpusSize"`
	StaticCount  int      `json:"staticCount"`
	// OracleStatus is empty when the oracle was not consulted.
	OracleStatus oracle.Status `json:"oracleStatus,omitempty"`
}

// Pipeline wires the selection phases together.
type Pipeline struct {
	cfg        *config.Config
	source     DiffSource
	extractor  *delta.Extractor
	indexer    *usage.Indexer
	listCorpus CorpusLister
	matcher    *match.Matcher
	suggester  SuggestionClient
	store      HistoryStore // may be nil when history is disabled
	logger     *logging.Logger
}

// New assembles a pipeline from its phase implementations. store and
// suggester may be nil; the pipeline then runs without caching/history
// and without the oracle fallback.
func New(
	cfg *config.Config,
	source DiffSource,
	extractor *delta.Extractor,
	indexer *usage.Indexer,
	listCorpus CorpusLister,
	matcher *match.Matcher,
	suggester SuggestionClient,
	store HistoryStore,
	logger *logging.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		extractor:  extractor,
		indexer:    indexer,
		listCorpus: listCorpus,
		matcher:    matcher,
		suggester:  suggester,
		store:      store,
		logger:     logger.With(map[string]interface{}{"component": "pipeline"}),
	}
}

// Select runs the analysis phases and returns the reconciled selection.
// Degradations (VCS failure, oracle outage, empty corpus) produce an empty
// or partial selection, never an error; the only errors are internal ones
// a caller cannot act on locally.
func (p *Pipeline) Select(ctx context.Context, baseOverride string) (selection.Result, Info, error) {
	info := Info{}

	commit := p.resolveCommit(ctx)
	info.Commit = commit

	// A previously analyzed commit skips diff parsing entirely.
	if cached, ok := p.cachedSelection(commit); ok {
		info.CacheHit = true
		p.logger.Info("using cached selection", map[string]interface{}{
			"commit": commit,
			"tests":  len(cached.Tests),
		})
		return cached, info, nil
	}

	changes := p.source.ChangedFiles(ctx, baseOverride)
	info.Base = changes.Base
	info.ChangedFiles = changes.Files
	if changes.Status != gitio.StatusOK {
		p.logger.Warn("change detection degraded", map[string]interface{}{
			"status": string(changes.Status),
		})
	}
	if len(changes.Files) == 0 {
		// Normal outcome: nothing changed, nothing to select, and the
		// oracle is never contacted.
		info.NoChanges = true
		return selection.Result{}, info, nil
	}

	diffs, functions, locators := p.extractDeltas(ctx, changes)
	info.Functions = functions
	info.Locators = locators

	// One-hop widening: locator changes implicate the methods using them.
	if len(locators) > 0 {
		expanded := p.indexer.ExpandLocators(p.cfg.ProjectRoot, p.cfg.Corpus.SourceRoots, locators)
		info.Expanded = expanded
		functions = unionSorted(functions, expanded)
	}

	tests, err := p.listCorpus(ctx)
	if err != nil {
		return selection.Result{}, info, err
	}
	info.CorpusSize = len(tests)
	if len(tests) == 0 {
		p.logger.Info("no test files found", nil)
		return selection.Result{}, info, nil
	}

	direct := p.matcher.Direct(tests, changes.Files)
	static := p.matcher.Match(tests, functions)
	info.StaticCount = len(direct) + len(static)

	sets := [][]selection.Candidate{direct, static}

	empty := info.StaticCount == 0
	tooMany := info.StaticCount > p.cfg.Selection.StaticUpperBound
	if p.suggester != nil && p.cfg.Oracle.Enabled && (empty || tooMany) {
		suggested, status := p.consultOracle(ctx, changes.Files, functions, locators, diffs, tests)
		info.OracleStatus = status

		if tooMany && selection.Policy(p.cfg.Selection.OraclePolicy) == selection.Replace && len(suggested) > 0 {
			// The static set was uninformatively large; trust the oracle's
			// focused pick instead, but the direct shortcut always survives.
			sets = [][]selection.Candidate{direct, suggested}
		} else {
			sets = append(sets, suggested)
		}
	}

	reconciler := selection.NewReconciler(
		p.cfg.Selection.MaxTests, p.cfg.Selection.Prioritize, p.scorer(), p.logger)
	result := reconciler.Reconcile(sets...)

	p.cacheSelection(commit, result)
	return result, info, nil
}

// extractDeltas fetches and parses per-file diffs for changed Python files.
func (p *Pipeline) extractDeltas(ctx context.Context, changes gitio.ChangeSet) (map[string]string, []string, []string) {
	diffs := make(map[string]string, len(changes.Files))
	all := make([]delta.Deltas, 0, len(changes.Files))

	for _, f := range changes.Files {
		if !strings.HasSuffix(f, ".py") {
			continue
		}
		diffText := p.source.Diff(ctx, changes.Base, f)
		diffs[f] = diffText
		d := p.extractor.Extract(f, diffText)
		if !d.Empty() {
			all = append(all, d)
		}
	}

	functions, locators := delta.Merge(all)
	p.logger.Info("symbol deltas extracted", map[string]interface{}{
		"functions": len(functions),
		"locators":  len(locators),
	})
	return diffs, functions, locators
}

// consultOracle queries the suggestion service and wraps its validated
// paths as candidates.
func (p *Pipeline) consultOracle(
	ctx context.Context,
	changedFiles, functions, locators []string,
	diffs map[string]string,
	tests []string,
) ([]selection.Candidate, oracle.Status) {
	var recentFailures []string
	if p.store != nil {
		recentFailures = p.store.RecentlyFailing(5)
	}

	suggestion := p.suggester.Suggest(ctx, oracle.Request{
		ChangedFiles:   changedFiles,
		Functions:      functions,
		Locators:       locators,
		Diffs:          diffs,
		Corpus:         tests,
		RecentFailures: recentFailures,
	})

	candidates := make([]selection.Candidate, 0, len(suggestion.Paths))
	for _, path := range suggestion.Paths {
		candidates = append(candidates, selection.Candidate{
			Path:       path,
			Provenance: selection.AISuggested,
			Reason:     "suggested by oracle",
		})
	}
	return candidates, suggestion.Status
}

func (p *Pipeline) resolveCommit(ctx context.Context) string {
	commit, err := p.source.Head(ctx)
	if err != nil {
		p.logger.Warn("could not resolve HEAD; selection cache disabled for this run", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return commit
}

func (p *Pipeline) cachedSelection(commit string) (selection.Result, bool) {
	if p.store == nil || commit == "" || !p.cfg.History.CacheSelections {
		return selection.Result{}, false
	}
	payload, ok := p.store.CachedSelection(commit)
	if !ok {
		return selection.Result{}, false
	}
	var result selection.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		p.logger.Warn("discarding corrupt selection cache entry", map[string]interface{}{
			"commit": commit,
			"error":  err.Error(),
		})
		return selection.Result{}, false
	}
	return result, true
}

func (p *Pipeline) cacheSelection(commit string, result selection.Result) {
	if p.store == nil || commit == "" || !p.cfg.History.CacheSelections {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := p.store.SaveSelection(commit, payload); err != nil {
		p.logger.Warn("failed to cache selection", map[string]interface{}{
			"commit": commit,
			"error":  err.Error(),
		})
	}
}

func (p *Pipeline) scorer() selection.Scorer {
	if p.store == nil {
		return nil
	}
	return p.store
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	// a and b arrive sorted; the union preserves a-then-b grouping, which
	// downstream matching does not depend on.
	return out
}
