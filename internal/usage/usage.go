// Package usage widens the changed-method set by one hop: a changed locator
// constant implicates every method whose body references it.
package usage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tsel/internal/logging"
	"tsel/internal/pysrc"
)

// Indexer maps changed locator names onto the methods that use them.
type Indexer struct {
	parser pysrc.SpanParser
	logger *logging.Logger
}

// NewIndexer creates an indexer using the given span parser.
func NewIndexer(parser pysrc.SpanParser, logger *logging.Logger) *Indexer {
	return &Indexer{
		parser: parser,
		logger: logger.With(map[string]interface{}{"component": "usage"}),
	}
}

// ExpandLocators scans every non-test Python file under the given roots and
// returns the sorted names of methods whose span mentions any of the changed
// locators. The expansion is single-hop and only ever adds names; callers
// union it with directly detected method deltas.
//
// A locator referenced nowhere yields an empty result. Per-file read or
// parse errors skip that file and continue.
func (ix *Indexer) ExpandLocators(projectRoot string, roots []string, locators []string) []string {
	if len(locators) == 0 {
		return nil
	}

	impacted := make(map[string]bool)
	for _, root := range roots {
		ix.scanRoot(filepath.Join(projectRoot, root), locators, impacted)
	}

	out := make([]string, 0, len(impacted))
	for name := range impacted {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (ix *Indexer) scanRoot(root string, locators []string, impacted map[string]bool) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry, keep walking
		}
		if d.IsDir() || !strings.HasSuffix(path, ".py") {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), "test_") {
			return nil
		}
		ix.scanFile(path, locators, impacted)
		return nil
	})
	if err != nil {
		ix.logger.Warn("source root scan failed", map[string]interface{}{
			"root":  root,
			"error": err.Error(),
		})
	}
}

func (ix *Indexer) scanFile(path string, locators []string, impacted map[string]bool) {
	source, err := os.ReadFile(path)
	if err != nil {
		ix.logger.Warn("skipping unreadable source file", map[string]interface{}{
			"file":  path,
			"error": err.Error(),
		})
		return
	}

	spans, err := ix.parser.Methods(source)
	if err != nil {
		ix.logger.Warn("skipping unparsable source file", map[string]interface{}{
			"file":  path,
			"error": err.Error(),
		})
		return
	}

	for _, span := range spans {
		body := pysrc.SpanText(source, span)
		for _, locator := range locators {
			if strings.Contains(body, locator) {
				impacted[span.Name] = true
				break
			}
		}
	}
}
