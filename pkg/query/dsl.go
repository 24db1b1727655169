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

package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canopy-dev/canopy/internal/contract"
)

// ParamQuery is the parameterized query API's wire shape; it is
// internal/contract's QueryParams so both front ends and the HTTP/CLI
// layer validate against one definition.
type ParamQuery = contract.QueryParams

const defaultResultLimit = 16 // spec.md §9 Open Question: prefer 16 over 20

// DefaultResultLimit exposes defaultResultLimit to callers outside the
// package (runtime's auto-merge needs it when a caller's params carry no
// explicit limit of their own).
func DefaultResultLimit() int { return defaultResultLimit }

// ErrQueryParse is returned for any malformed query, the QueryParse
// error class of spec.md §7.
type ErrQueryParse struct{ Reason string }

func (e *ErrQueryParse) Error() string { return "query parse: " + e.Reason }

// Compile turns the parameterized API into an algebra tree. Multiple
// patterns combine per match (match=all -> intersect, match=any ->
// union, spec §4.5); file_path selects every node of that file, and a
// glob wraps the compiled leaf in in_file. A glob with no other search
// parameter fails to compile.
func Compile(p ParamQuery) (*Node, int, error) {
	if res := contract.ValidateQueryParams(p); !res.OK {
		return nil, 0, &ErrQueryParse{Reason: res.Message}
	}

	var leaf *Node
	switch {
	case p.Symbol != "":
		switch p.Kind {
		case "definition":
			leaf = Definition(p.Symbol)
		case "reference":
			leaf = References(p.Symbol)
		default:
			leaf = Symbol(p.Symbol)
		}
	case p.Section != "":
		leaf = Section(p.Section)
	case p.FilePath != "":
		leaf = File(p.FilePath)
	case p.Parent != "" && p.Child != "":
		leaf = ChildrenNamed(p.Parent, p.Child)
	case p.Parent != "":
		leaf = Parent(p.Parent)
	case len(p.Patterns) > 0:
		leaves := make([]*Node, 0, len(p.Patterns))
		for _, pat := range p.Patterns {
			leaves = append(leaves, Text(pat))
		}
		if p.Match == "all" {
			leaf = Intersect(leaves...)
		} else {
			leaf = Union(leaves...)
		}
	case p.Pattern != "":
		leaf = Text(p.Pattern)
	default:
		return nil, 0, &ErrQueryParse{Reason: "no search parameter resolved to a query node"}
	}

	if p.Glob != "" {
		leaf = InFile(p.Glob, leaf)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}
	return leaf, limit, nil
}

// ParseSExpr compiles the s-expression surface (spec §4.5) into the same
// algebra tree Compile produces. Grammar:
//
//	expr    := '(' ident arg* ')'
//	arg     := expr | string | number
//	ident   := text|symbol|definition|references|section|file|parent
//	         | children_named|in_file|union|intersect|limit
//
// Strings may be bare words (no embedded whitespace/parens) or
// double-quoted for values containing spaces.
func ParseSExpr(src string) (*Node, int, error) {
	toks, err := tokenizeSExpr(src)
	if err != nil {
		return nil, 0, err
	}
	if len(toks) == 0 {
		return nil, 0, &ErrQueryParse{Reason: "empty query"}
	}
	p := &sexprParser{toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, 0, err
	}
	if p.pos != len(p.toks) {
		return nil, 0, &ErrQueryParse{Reason: "trailing tokens after top-level expression"}
	}

	limit := defaultResultLimit
	if n.Kind == KindLimit {
		limit = n.Limit
		n = n.Children[0]
	}
	return n, limit, nil
}

type sexprParser struct {
	toks []string
	pos  int
}

func (p *sexprParser) peek() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	return p.toks[p.pos], true
}

func (p *sexprParser) next() (string, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *sexprParser) expect(tok string) error {
	t, ok := p.next()
	if !ok || t != tok {
		return &ErrQueryParse{Reason: fmt.Sprintf("expected %q, got %q", tok, t)}
	}
	return nil
}

func (p *sexprParser) parseExpr() (*Node, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	op, ok := p.next()
	if !ok {
		return nil, &ErrQueryParse{Reason: "expected operator after ("}
	}

	var n *Node
	var err error
	switch Kind(op) {
	case KindText:
		n, err = p.parseUnaryString(KindText)
	case KindSymbol:
		n, err = p.parseUnaryString(KindSymbol)
	case KindDefinition:
		n, err = p.parseUnaryString(KindDefinition)
	case KindReferences:
		n, err = p.parseUnaryString(KindReferences)
	case KindSection:
		n, err = p.parseUnaryString(KindSection)
	case KindFile:
		n, err = p.parseUnaryString(KindFile)
	case KindParent:
		n, err = p.parseUnaryString(KindParent)
	case KindChildrenNamed:
		var parent, child string
		if parent, err = p.parseString(); err == nil {
			child, err = p.parseString()
		}
		if err == nil {
			n = ChildrenNamed(parent, child)
		}
	case KindInFile:
		var glob string
		var child *Node
		if glob, err = p.parseString(); err == nil {
			child, err = p.parseExpr()
		}
		if err == nil {
			n = InFile(glob, child)
		}
	case KindUnion, KindIntersect:
		var children []*Node
		for {
			tok, ok := p.peek()
			if !ok {
				err = &ErrQueryParse{Reason: "unterminated " + op}
				break
			}
			if tok == ")" {
				break
			}
			var child *Node
			child, err = p.parseExpr()
			if err != nil {
				break
			}
			children = append(children, child)
		}
		if err == nil {
			if len(children) == 0 {
				err = &ErrQueryParse{Reason: op + " requires at least one child"}
			} else if op == string(KindUnion) {
				n = Union(children...)
			} else {
				n = Intersect(children...)
			}
		}
	case KindLimit:
		var num string
		var child *Node
		if num, err = p.parseAtom(); err == nil {
			var v int
			v, err = strconv.Atoi(num)
			if err == nil {
				child, err = p.parseExpr()
			}
			if err == nil {
				n = LimitNode(v, child)
			}
		}
	default:
		err = &ErrQueryParse{Reason: "unknown operator " + op}
	}
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *sexprParser) parseUnaryString(kind Kind) (*Node, error) {
	s, err := p.parseString()
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindText:
		return Text(s), nil
	case KindSymbol:
		return Symbol(s), nil
	case KindDefinition:
		return Definition(s), nil
	case KindReferences:
		return References(s), nil
	case KindSection:
		return Section(s), nil
	case KindFile:
		return File(s), nil
	case KindParent:
		return Parent(s), nil
	default:
		return nil, &ErrQueryParse{Reason: "unreachable unary kind " + string(kind)}
	}
}

func (p *sexprParser) parseAtom() (string, error) {
	t, ok := p.next()
	if !ok || t == "(" || t == ")" {
		return "", &ErrQueryParse{Reason: "expected atom"}
	}
	return t, nil
}

func (p *sexprParser) parseString() (string, error) {
	t, err := p.parseAtom()
	if err != nil {
		return "", err
	}
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		return t[1 : len(t)-1], nil
	}
	return t, nil
}

// tokenizeSExpr splits src into parens, bare words, and quoted strings.
func tokenizeSExpr(src string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				j++
			}
			if j >= len(src) {
				return nil, &ErrQueryParse{Reason: "unterminated quoted string"}
			}
			toks = append(toks, src[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\n\r()", rune(src[j])) {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks, nil
}
