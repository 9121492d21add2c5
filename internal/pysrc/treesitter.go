package pysrc

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// treeSitterParser computes exact method spans from the Python syntax tree.
// Nested functions get their own spans; the enclosing function's span still
// covers them, preserving the additive-expansion property.
type treeSitterParser struct {
	parser *sitter.Parser
}

func newTreeSitterParser() *treeSitterParser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &treeSitterParser{parser: p}
}

func (p *treeSitterParser) Methods(source []byte) ([]MethodSpan, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	spans := make([]MethodSpan, 0)
	collectFunctions(tree.RootNode(), source, &spans)
	return spans, nil
}

func collectFunctions(node *sitter.Node, source []byte, spans *[]MethodSpan) {
	if node == nil {
		return
	}

	if node.Type() == "function_definition" {
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			*spans = append(*spans, MethodSpan{
				Name:      nameNode.Content(source),
				StartLine: int(node.StartPoint().Row) + 1,
				EndLine:   int(node.EndPoint().Row) + 1,
			})
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectFunctions(node.Child(i), source, spans)
	}
}
