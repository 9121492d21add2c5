package oracle

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// validate parses free-text output into a bounded list of real corpus
// paths. Each line is accepted verbatim on an exact corpus match, mapped to
// its single best fuzzy neighbor above the cutoff otherwise, and silently
// discarded when neither applies. Hallucinated paths never survive this
// step.
func (c *Client) validate(output string, tests []string) []string {
	corpusSet := make(map[string]bool, len(tests))
	for _, t := range tests {
		corpusSet[t] = true
	}

	seen := make(map[string]bool)
	accepted := make([]string, 0, c.opts.MaxSuggestions)
	for _, line := range strings.Split(output, "\n") {
		candidate := cleanLine(line)
		if candidate == "" || strings.Contains(candidate, "..") {
			continue
		}

		mapped := ""
		if corpusSet[candidate] {
			mapped = candidate
		} else if best, score := closestMatch(candidate, tests); score >= c.opts.FuzzyCutoff {
			c.logger.Debug("fuzzy-mapped oracle suggestion", map[string]interface{}{
				"suggested": candidate,
				"mapped":    best,
				"score":     score,
			})
			mapped = best
		}
		if mapped == "" || seen[mapped] {
			continue
		}

		seen[mapped] = true
		accepted = append(accepted, mapped)
		if len(accepted) >= c.opts.MaxSuggestions {
			break
		}
	}
	return accepted
}

// cleanLine strips decoration LLMs tend to add around paths.
func cleanLine(line string) string {
	s := strings.TrimSpace(line)
	s = strings.Trim(s, "`\"'")
	s = strings.TrimPrefix(s, "- ")
	s = strings.TrimPrefix(s, "* ")
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.TrimPrefix(s, "./")
	return strings.TrimSpace(s)
}

// closestMatch returns the corpus path most similar to the candidate and
// its similarity ratio.
func closestMatch(candidate string, tests []string) (string, float64) {
	best := ""
	bestScore := 0.0
	a := splitChars(candidate)
	for _, t := range tests {
		score := difflib.NewMatcher(a, splitChars(t)).Ratio()
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, bestScore
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
