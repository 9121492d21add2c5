package pysrc

import (
	"strings"
	"testing"
)

const sampleSource = `import os

def first():
    a = 1
    return a

def second():
    return 2`

func TestRegexParserMethods(t *testing.T) {
	parser, err := NewSpanParser("regex")
	if err != nil {
		t.Fatalf("NewSpanParser failed: %v", err)
	}

	spans, err := parser.Methods([]byte(sampleSource))
	if err != nil {
		t.Fatalf("Methods failed: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}

	if spans[0].Name != "first" || spans[0].StartLine != 3 {
		t.Errorf("Unexpected first span: %+v", spans[0])
	}
	if spans[1].Name != "second" || spans[1].StartLine != 7 {
		t.Errorf("Unexpected second span: %+v", spans[1])
	}
	if spans[0].EndLine >= spans[1].StartLine {
		t.Errorf("First span end %d overlaps second span start %d",
			spans[0].EndLine, spans[1].StartLine)
	}
	if spans[1].EndLine != 8 {
		t.Errorf("Expected last span to end at line 8, got %d", spans[1].EndLine)
	}
}

func TestSpanTextCoversOnlyOwnBody(t *testing.T) {
	parser, _ := NewSpanParser("regex")
	spans, err := parser.Methods([]byte(sampleSource))
	if err != nil {
		t.Fatalf("Methods failed: %v", err)
	}

	body := SpanText([]byte(sampleSource), spans[0])
	if !strings.Contains(body, "a = 1") {
		t.Errorf("Expected first span body to contain its statement, got %q", body)
	}
	if strings.Contains(body, "return 2") {
		t.Errorf("First span body leaked into second method: %q", body)
	}
}

func TestSpanTextOutOfRange(t *testing.T) {
	if got := SpanText([]byte("x = 1"), MethodSpan{Name: "missing", StartLine: 10, EndLine: 12}); got != "" {
		t.Errorf("Expected empty text for out-of-range span, got %q", got)
	}
}

func TestRegexParserIndentedMethods(t *testing.T) {
	source := "class Page:\n    def open(self):\n        pass\n    def close(self):\n        pass"
	parser, _ := NewSpanParser("regex")
	spans, err := parser.Methods([]byte(source))
	if err != nil {
		t.Fatalf("Methods failed: %v", err)
	}
	if len(spans) != 2 || spans[0].Name != "open" || spans[1].Name != "close" {
		t.Errorf("Expected spans [open close], got %+v", spans)
	}
}

func TestNewSpanParserUnknownKind(t *testing.T) {
	if _, err := NewSpanParser("antlr"); err == nil {
		t.Error("Expected error for unknown parser kind")
	}
}

func TestTreeSitterParserMethods(t *testing.T) {
	parser, err := NewSpanParser("treesitter")
	if err != nil {
		t.Fatalf("NewSpanParser failed: %v", err)
	}

	spans, err := parser.Methods([]byte("def foo():\n    return 1\n"))
	if err != nil {
		t.Fatalf("Methods failed: %v", err)
	}
	if len(spans) != 1 || spans[0].Name != "foo" {
		t.Fatalf("Expected single span named foo, got %+v", spans)
	}
	if spans[0].StartLine != 1 {
		t.Errorf("Expected span to start at line 1, got %d", spans[0].StartLine)
	}
}
