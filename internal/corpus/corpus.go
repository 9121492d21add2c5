// Package corpus enumerates candidate test files.
package corpus

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// List returns the repo-relative paths of all test files under testRoot
// matching the glob pattern (e.g. "**/test_*.py"), sorted and
// forward-slash normalized.
//
// The corpus is re-enumerated on every call: test files may themselves have
// just been added or deleted by the change under analysis.
func List(projectRoot, testRoot, pattern string) ([]string, error) {
	root := filepath.Join(projectRoot, testRoot)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no test directory is a normal, empty outcome
		}
		return nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.ToSlash(filepath.Join(testRoot, m)))
	}
	sort.Strings(out)
	return out, nil
}

// Contains reports whether path is a member of the corpus. Paths are
// compared after forward-slash normalization.
func Contains(tests []string, path string) bool {
	normalized := filepath.ToSlash(path)
	for _, t := range tests {
		if t == normalized {
			return true
		}
	}
	return false
}

// ReadFile reads a corpus member's content relative to the project root.
func ReadFile(projectRoot, testPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(testPath)))
}
