// Package delta extracts symbol-level changes from unified diff text.
//
// Extraction is a pure function of the diff text: the same diff always
// yields the same delta set, which the selection cache relies on.
package delta

import (
	"regexp"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// Kind classifies a changed symbol.
type Kind string

const (
	// Function is a changed function or method.
	Function Kind = "function"
	// Locator is a changed UI locator constant.
	Locator Kind = "locator"
)

// Symbol is a single inferred change.
type Symbol struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	File string `json:"file"`
}

// Deltas is the extraction result for one file's diff.
type Deltas struct {
	File string `json:"file"`
	// Functions are names of functions/methods with added or removed lines
	// anywhere in their textual span, not only signature edits.
	Functions []string `json:"functions,omitempty"`
	// Locators are names of added/removed locator constants.
	Locators []string `json:"locators,omitempty"`
	// TestFuncs are added/removed test functions when the file is itself a
	// test file; used for reporting alongside the direct-change shortcut.
	TestFuncs []string `json:"testFuncs,omitempty"`
}

// Empty reports whether no symbol changes were detected.
func (d Deltas) Empty() bool {
	return len(d.Functions) == 0 && len(d.Locators) == 0 && len(d.TestFuncs) == 0
}

// Symbols flattens the deltas into typed symbols.
func (d Deltas) Symbols() []Symbol {
	out := make([]Symbol, 0, len(d.Functions)+len(d.Locators))
	for _, name := range d.Functions {
		out = append(out, Symbol{Kind: Function, Name: name, File: d.File})
	}
	for _, name := range d.Locators {
		out = append(out, Symbol{Kind: Locator, Name: name, File: d.File})
	}
	return out
}

var defPattern = regexp.MustCompile(`^[+\s-]*def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

// Extractor turns unified diff text into symbol deltas.
//
// The function-span heuristic is line-based, not AST-based: a definition
// line sets the current symbol, any added/removed line afterwards attributes
// the change to it, and git metadata between hunks clears it. Deeply nested
// or unconventionally formatted code can be mis-attributed; the trade is
// over-selection of tests, which is the cheaper failure.
type Extractor struct {
	locatorPattern *regexp.Regexp
	testDefPattern *regexp.Regexp
	logger         *logging.Logger
}

// NewExtractor creates an extractor recognizing locator constants by the
// given identifier suffix (e.g. "_LOCATOR").
func NewExtractor(locatorSuffix string, logger *logging.Logger) *Extractor {
	if locatorSuffix == "" {
		locatorSuffix = "_LOCATOR"
	}
	return &Extractor{
		locatorPattern: regexp.MustCompile(`^[+-]\s*([A-Z0-9_]+` + regexp.QuoteMeta(locatorSuffix) + `)\s*=`),
		testDefPattern: regexp.MustCompile(`^[+-]\s*def\s+(test_\w+)`),
		logger:         logger.With(map[string]interface{}{"component": "delta"}),
	}
}

// Extract parses the unified diff for a single file and returns the symbol
// deltas. Empty or unparsable diff text yields empty deltas; this boundary
// never fails.
func (e *Extractor) Extract(file, diffText string) Deltas {
	d := Deltas{File: file}
	if strings.TrimSpace(diffText) == "" {
		return d
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		selErr := errors.New(errors.DiffParseFailed, "diff text could not be parsed", err)
		e.logger.Warn("file contributes no deltas", map[string]interface{}{
			"file":  file,
			"error": selErr.Error(),
		})
		return d
	}
	if len(fileDiffs) == 0 {
		// Binary files or mode-only changes.
		return d
	}

	functions := make(map[string]bool)
	locators := make(map[string]bool)
	testFuncs := make(map[string]bool)

	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			e.walkHunk(string(hunk.Body), functions, locators, testFuncs)
		}
	}

	d.Functions = sortedKeys(functions)
	d.Locators = sortedKeys(locators)
	d.TestFuncs = sortedKeys(testFuncs)
	return d
}

// walkHunk applies the current-symbol heuristic to one hunk body. Hunk
// boundaries clear the current symbol, matching the original behavior where
// @@ headers reset it.
func (e *Extractor) walkHunk(body string, functions, locators, testFuncs map[string]bool) {
	currentFunc := ""

	for _, line := range strings.Split(body, "\n") {
		if line == "" || line[0] == '\\' {
			// Context blank line or "\ No newline at end of file".
			continue
		}

		if m := e.locatorPattern.FindStringSubmatch(line); m != nil {
			locators[m[1]] = true
		}
		if m := e.testDefPattern.FindStringSubmatch(line); m != nil {
			testFuncs[m[1]] = true
		}

		if m := defPattern.FindStringSubmatch(line); m != nil {
			// The definition line itself is not counted; only body edits
			// under it attribute a change.
			currentFunc = m[1]
			continue
		}

		marker := line[0]
		if (marker == '+' || marker == '-') && currentFunc != "" {
			functions[currentFunc] = true
		}
		if marker != '+' && marker != '-' && marker != ' ' {
			// Zero-indent non-diff line: end of the enclosing block.
			currentFunc = ""
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge combines per-file deltas into deduplicated, sorted name sets.
func Merge(all []Deltas) (functions, locators []string) {
	fns := make(map[string]bool)
	locs := make(map[string]bool)
	for _, d := range all {
		for _, f := range d.Functions {
			fns[f] = true
		}
		for _, l := range d.Locators {
			locs[l] = true
		}
	}
	return sortedKeys(fns), sortedKeys(locs)
}
