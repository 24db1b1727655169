// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package query implements the retrieval algebra: a tagged-union AST
// compiled from either the parameterized API or the s-expression DSL
// surface, interpreted by Engine.Execute against a store.Store.
package query

import "fmt"

// Kind identifies one node of the query algebra tree.
type Kind string

const (
	KindText          Kind = "text"
	KindSymbol        Kind = "symbol"
	KindDefinition    Kind = "definition"
	KindReferences    Kind = "references"
	KindSection       Kind = "section"
	KindFile          Kind = "file"
	KindParent        Kind = "parent"
	KindChildrenNamed Kind = "children_named"
	KindInFile        Kind = "in_file"
	KindUnion         Kind = "union"
	KindIntersect     Kind = "intersect"
	KindLimit         Kind = "limit"
)

// Node is one node of the query algebra tree. Leaf kinds (text, symbol,
// definition, references, section, file, parent, children_named) carry
// their operand in Pattern/Name/Child as appropriate; combinator kinds
// (union, intersect, in_file, limit) carry one or more Children.
type Node struct {
	Kind Kind

	// Leaf operands. Which fields are meaningful depends on Kind; the
	// trailing comment on each field names the kinds that use it.
	Pattern string // text
	Name    string // symbol, definition, references, parent, children_named (parent id)
	Child   string // children_named (child name)
	Section string // section
	Path    string // file
	Glob    string // in_file

	// Combinator operands.
	Children []*Node // union, intersect, in_file (single child), limit (single child)
	Limit    int     // limit
}

func Text(pattern string) *Node       { return &Node{Kind: KindText, Pattern: pattern} }
func Symbol(name string) *Node        { return &Node{Kind: KindSymbol, Name: name} }
func Definition(name string) *Node    { return &Node{Kind: KindDefinition, Name: name} }
func References(name string) *Node    { return &Node{Kind: KindReferences, Name: name} }
func Section(heading string) *Node    { return &Node{Kind: KindSection, Section: heading} }
func File(path string) *Node          { return &Node{Kind: KindFile, Path: path} }
func Parent(name string) *Node        { return &Node{Kind: KindParent, Name: name} }

func ChildrenNamed(parent, child string) *Node {
	return &Node{Kind: KindChildrenNamed, Name: parent, Child: child}
}

func InFile(glob string, q *Node) *Node {
	return &Node{Kind: KindInFile, Glob: glob, Children: []*Node{q}}
}

func Union(qs ...*Node) *Node {
	return &Node{Kind: KindUnion, Children: qs}
}

func Intersect(qs ...*Node) *Node {
	return &Node{Kind: KindIntersect, Children: qs}
}

func LimitNode(n int, q *Node) *Node {
	return &Node{Kind: KindLimit, Limit: n, Children: []*Node{q}}
}

// String renders a Node back to its s-expression form, mainly useful for
// logging and feedback fingerprinting (spec §4.6's query_event).
func (n *Node) String() string {
	if n == nil {
		return "()"
	}
	switch n.Kind {
	case KindText:
		return fmt.Sprintf("(text %q)", n.Pattern)
	case KindSymbol:
		return fmt.Sprintf("(symbol %q)", n.Name)
	case KindDefinition:
		return fmt.Sprintf("(definition %q)", n.Name)
	case KindReferences:
		return fmt.Sprintf("(references %q)", n.Name)
	case KindSection:
		return fmt.Sprintf("(section %q)", n.Section)
	case KindFile:
		return fmt.Sprintf("(file %q)", n.Path)
	case KindParent:
		return fmt.Sprintf("(parent %q)", n.Name)
	case KindChildrenNamed:
		return fmt.Sprintf("(children_named %q %q)", n.Name, n.Child)
	case KindInFile:
		return fmt.Sprintf("(in_file %q %s)", n.Glob, n.Children[0])
	case KindUnion:
		return joinChildren("union", n.Children)
	case KindIntersect:
		return joinChildren("intersect", n.Children)
	case KindLimit:
		return fmt.Sprintf("(limit %d %s)", n.Limit, n.Children[0])
	default:
		return "(unknown)"
	}
}

func joinChildren(op string, children []*Node) string {
	out := "(" + op
	for _, c := range children {
		out += " " + c.String()
	}
	return out + ")"
}
