//go:build cgo

package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// identifierTypes are leaf node types that carry a plain name.
var identifierTypes = map[string]bool{
	"identifier":           true,
	"field_identifier":     true,
	"property_identifier":  true,
	"simple_identifier":    true,
	"type_identifier":      true,
	"namespace_identifier": true,
	"constant":             true,
	"name":                 true,
	"word":                 true,
}

// qualifiedTypes keep their full text; the key codec sanitizes the
// separators.
var qualifiedTypes = map[string]bool{
	"scoped_identifier":      true,
	"scoped_type_identifier": true,
	"qualified_identifier":   true,
	"qualified_name":         true,
	"qualified_type":         true,
	"scope_resolution":       true,
	"namespace_name":         true,
	"dotted_name":            true,
	"nested_type_identifier": true,
	"user_type":              true,
}

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

func field(n *sitter.Node, name string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

// firstNamed returns the first named child whose type is in types.
func firstNamed(n *sitter.Node, types ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// defaultName reads the "name" field, falling back to the first
// identifier-like child.
func defaultName(n *sitter.Node, src []byte) string {
	if nm := field(n, "name"); nm != nil {
		return refName(nm, src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if identifierTypes[c.Type()] || qualifiedTypes[c.Type()] {
			return text(c, src)
		}
	}
	return ""
}

// refName reduces an expression at a call or reference site to the name it
// refers to. Member accesses keep only the member; qualified paths keep the
// whole path.
func refName(n *sitter.Node, src []byte) string {
	for depth := 0; n != nil && depth < 8; depth++ {
		t := n.Type()
		switch {
		case identifierTypes[t], qualifiedTypes[t]:
			return text(n, src)
		}

		switch t {
		case "selector_expression", "field_expression":
			n = field(n, "field")
		case "member_expression":
			n = field(n, "property")
		case "attribute":
			n = field(n, "attribute")
		case "member_access_expression", "generic_name", "template_function", "template_type":
			if nm := field(n, "name"); nm != nil {
				n = nm
			} else {
				n = firstNamed(n, "identifier")
			}
		case "navigation_expression":
			n = field(n, "suffix")
		case "navigation_suffix":
			n = field(n, "suffix")
		case "generic_type", "generic_function":
			if nm := field(n, "name"); nm != nil {
				n = nm
			} else if fn := field(n, "function"); fn != nil {
				n = fn
			} else {
				n = firstNamed(n, "type_identifier", "identifier", "scoped_type_identifier")
			}
		case "string", "string_literal", "interpreted_string_literal", "raw_string_literal",
			"system_lib_string", "string_fragment":
			return text(n, src)
		default:
			return ""
		}
	}
	return ""
}

// declaratorName digs through C/C++ declarators (pointer, reference,
// function) to the declared name.
func declaratorName(n *sitter.Node, src []byte) string {
	for depth := 0; n != nil && depth < 8; depth++ {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "qualified_identifier",
			"destructor_name", "operator_name":
			return text(n, src)
		}
		if d := field(n, "declarator"); d != nil {
			n = d
			continue
		}
		if n.NamedChildCount() == 0 {
			return ""
		}
		n = n.NamedChild(int(n.NamedChildCount()) - 1)
	}
	return ""
}

// typeNames collects the outermost type references below n.
func typeNames(n *sitter.Node, src []byte) []string {
	var out []string
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		if c == nil {
			return
		}
		t := c.Type()
		if identifierTypes[t] || qualifiedTypes[t] || t == "generic_type" || t == "generic_name" || t == "member_expression" {
			if name := refName(c, src); name != "" {
				out = append(out, name)
			}
			return
		}
		if t == "type_arguments" || t == "type_argument_list" || t == "arguments" || t == "keyword_argument" {
			return
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		visit(n.NamedChild(i))
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`<>")
}
