// Package pysrc parses Python source files into method spans.
//
// Two parsers implement the same contract: a line-based heuristic matching
// the diff extractor's definition rule, and a tree-sitter parser that
// computes exact spans. Callers pick one by name so the stricter
// implementation can be swapped in without touching call sites.
package pysrc

import (
	"fmt"
	"regexp"
	"strings"
)

// MethodSpan is the textual extent of one function or method.
type MethodSpan struct {
	Name      string
	StartLine int // 1-based line of the def statement
	EndLine   int // 1-based inclusive last line of the span
}

// SpanParser extracts method spans from Python source.
type SpanParser interface {
	Methods(source []byte) ([]MethodSpan, error)
}

// NewSpanParser returns the parser registered under the given name:
// "regex" (default) or "treesitter".
func NewSpanParser(kind string) (SpanParser, error) {
	switch kind {
	case "", "regex":
		return &regexParser{}, nil
	case "treesitter":
		return newTreeSitterParser(), nil
	default:
		return nil, fmt.Errorf("unknown span parser %q", kind)
	}
}

var methodDefPattern = regexp.MustCompile(`^\s*def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

// regexParser approximates spans with the definition-line heuristic: a span
// runs from its def line to the line before the next def, or file end. The
// same rule the diff extractor uses, so static analysis and usage expansion
// agree on boundaries.
type regexParser struct{}

func (p *regexParser) Methods(source []byte) ([]MethodSpan, error) {
	lines := strings.Split(string(source), "\n")

	spans := make([]MethodSpan, 0)
	for i, line := range lines {
		m := methodDefPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if n := len(spans); n > 0 {
			spans[n-1].EndLine = i // line before this def, 1-based
		}
		spans = append(spans, MethodSpan{Name: m[1], StartLine: i + 1})
	}
	if n := len(spans); n > 0 {
		spans[n-1].EndLine = len(lines)
	}
	return spans, nil
}

// SpanText returns the source lines covered by the span.
func SpanText(source []byte, span MethodSpan) string {
	lines := strings.Split(string(source), "\n")
	if span.StartLine < 1 || span.StartLine > len(lines) {
		return ""
	}
	end := span.EndLine
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[span.StartLine-1:end], "\n")
}
