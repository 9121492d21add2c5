// Package match selects test files by textual symbol matching.
package match

import (
	"regexp"

	"tsel/internal/corpus"
	"tsel/internal/logging"
	"tsel/internal/selection"
)

// Matcher scans test file contents for references to changed symbols.
type Matcher struct {
	projectRoot string
	logger      *logging.Logger
}

// NewMatcher creates a static matcher rooted at projectRoot.
func NewMatcher(projectRoot string, logger *logging.Logger) *Matcher {
	return &Matcher{
		projectRoot: projectRoot,
		logger:      logger.With(map[string]interface{}{"component": "match"}),
	}
}

// Direct returns candidates for changed files that are themselves members
// of the test corpus. Editing a test file always selects that test file,
// regardless of symbol matching.
func (m *Matcher) Direct(tests []string, changedFiles []string) []selection.Candidate {
	out := make([]selection.Candidate, 0)
	for _, f := range changedFiles {
		if corpus.Contains(tests, f) {
			out = append(out, selection.Candidate{
				Path:       f,
				Provenance: selection.Direct,
				Reason:     "test file changed",
			})
		}
	}
	return out
}

// Match returns candidates whose content references any changed function
// name, in bare-call or attribute-call form. Matching is a pure function of
// the test file contents and the delta set; unreadable files are skipped
// with a log and never abort the scan.
func (m *Matcher) Match(tests []string, functions []string) []selection.Candidate {
	if len(functions) == 0 {
		return nil
	}

	patterns := make([]*regexp.Regexp, 0, 2*len(functions))
	for _, name := range functions {
		quoted := regexp.QuoteMeta(name)
		patterns = append(patterns,
			regexp.MustCompile(`\b`+quoted+`\s*\(`),
			regexp.MustCompile(`\.\s*`+quoted+`\s*\(`),
		)
	}

	out := make([]selection.Candidate, 0)
	for _, test := range tests {
		content, err := corpus.ReadFile(m.projectRoot, test)
		if err != nil {
			m.logger.Warn("skipping unreadable test file", map[string]interface{}{
				"file":  test,
				"error": err.Error(),
			})
			continue
		}

		for _, p := range patterns {
			if p.Match(content) {
				out = append(out, selection.Candidate{
					Path:       test,
					Provenance: selection.StaticMatch,
					Reason:     "references changed symbol",
				})
				break
			}
		}
	}
	return out
}
