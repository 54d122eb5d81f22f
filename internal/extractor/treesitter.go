package extractor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// CExtractor recognizes the same three symbol kinds as PatternExtractor
// using the tree-sitter C grammar.
type CExtractor struct{}

func (e *CExtractor) Name() string { return "treesitter" }

func (e *CExtractor) GetLanguage() *sitter.Language {
	return c.GetLanguage()
}

func (e *CExtractor) Extract(src []byte) ([]Symbol, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(e.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	var out []Symbol
	e.visit(tree.RootNode(), src, &out)
	return dedupe(out), nil
}

// visit walks top-level nodes. Linkage blocks and conditional preprocessor
// blocks are transparent; function bodies and aggregates are not entered.
func (e *CExtractor) visit(n *sitter.Node, src []byte, out *[]Symbol) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "preproc_def", "preproc_function_def":
			if sym, ok := e.extractMacro(child, src); ok {
				*out = append(*out, sym)
			}
		case "type_definition":
			if sym, ok := e.extractTypedef(child, src); ok {
				*out = append(*out, sym)
			}
		case "declaration":
			if sym, ok := e.extractFunction(child, src); ok {
				*out = append(*out, sym)
			}
		case "linkage_specification":
			if body := child.ChildByFieldName("body"); body != nil {
				e.visit(body, src, out)
			}
		case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "declaration_list":
			e.visit(child, src, out)
		}
	}
}

func (e *CExtractor) extractMacro(node *sitter.Node, src []byte) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	valueNode := node.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return Symbol{}, false
	}
	value, _ := stripComments(valueNode.Content(src), false)
	if strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `\`)) == "" {
		return Symbol{}, false
	}
	def := node.Content(src)
	if stripped, open := stripComments(def, false); open {
		def = stripped
	}
	return Symbol{
		Name:       nameNode.Content(src),
		Kind:       Macro,
		Definition: strings.TrimRight(def, " \t\r\n"),
		Line:       int(node.StartPoint().Row) + 1,
	}, true
}

func (e *CExtractor) extractTypedef(node *sitter.Node, src []byte) (Symbol, bool) {
	// The declarators follow the aliased type, so the last named child is the
	// final bound declarator.
	count := int(node.NamedChildCount())
	if count < 2 {
		return Symbol{}, false
	}
	name := declaratorName(node.NamedChild(count-1), src)
	if name == "" {
		return Symbol{}, false
	}
	return Symbol{
		Name:       name,
		Kind:       TypeAlias,
		Definition: strings.TrimSpace(node.Content(src)),
		Line:       int(node.StartPoint().Row) + 1,
	}, true
}

func (e *CExtractor) extractFunction(node *sitter.Node, src []byte) (Symbol, bool) {
	d := node.ChildByFieldName("declarator")
	for d != nil && d.Type() == "pointer_declarator" {
		d = d.ChildByFieldName("declarator")
	}
	if d == nil || d.Type() != "function_declarator" {
		return Symbol{}, false
	}
	inner := d.ChildByFieldName("declarator")
	if inner == nil || inner.Type() != "identifier" {
		return Symbol{}, false
	}
	return Symbol{
		Name:       inner.Content(src),
		Kind:       FunctionDecl,
		Definition: strings.TrimSpace(node.Content(src)),
		Line:       int(node.StartPoint().Row) + 1,
	}, true
}

// declaratorName digs through pointer, array, function and parenthesized
// declarators to the bound identifier.
func declaratorName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier", "identifier", "primitive_type":
		return n.Content(src)
	case "pointer_declarator", "array_declarator", "function_declarator", "parenthesized_declarator",
		"abstract_pointer_declarator", "attributed_declarator":
	default:
		return ""
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		return declaratorName(d, src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if name := declaratorName(n.NamedChild(i), src); name != "" {
			return name
		}
	}
	return ""
}
