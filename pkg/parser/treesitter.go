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

package parser

import (
	"context"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/store"
)

// grammarSpec declares, for one language, which node types define an
// indexable unit and which child field carries its name, plus which node
// types are call/import references worth recording in refs.
type grammarSpec struct {
	defNodeTypes  map[string]handle.NodeType
	nameField     string
	callNodeType  string
	callNameField string
	importTypes   map[string]bool
}

var goSpec = grammarSpec{
	defNodeTypes: map[string]handle.NodeType{
		"function_declaration": handle.NodeFunction,
		"method_declaration":   handle.NodeMethod,
		"type_declaration":     handle.NodeStruct,
	},
	nameField:     "name",
	callNodeType:  "call_expression",
	callNameField: "function",
	importTypes:   map[string]bool{"import_spec": true},
}

var pythonSpec = grammarSpec{
	defNodeTypes: map[string]handle.NodeType{
		"function_definition": handle.NodeFunction,
		"class_definition":    handle.NodeClass,
	},
	nameField:     "name",
	callNodeType:  "call",
	callNameField: "function",
	importTypes:   map[string]bool{"import_statement": true, "import_from_statement": true},
}

var jsSpec = grammarSpec{
	defNodeTypes: map[string]handle.NodeType{
		"function_declaration": handle.NodeFunction,
		"method_definition":    handle.NodeMethod,
		"class_declaration":    handle.NodeClass,
	},
	nameField:     "name",
	callNodeType:  "call_expression",
	callNameField: "function",
	importTypes:   map[string]bool{"import_statement": true},
}

var rustSpec = grammarSpec{
	defNodeTypes: map[string]handle.NodeType{
		"function_item": handle.NodeFunction,
		"struct_item":   handle.NodeStruct,
		"enum_item":     handle.NodeStruct,
		"trait_item":    handle.NodeClass,
	},
	nameField:     "name",
	callNodeType:  "call_expression",
	callNameField: "function",
	importTypes:   map[string]bool{"use_declaration": true},
}

// treesitterExtractor parses one grammar via Tree-sitter and walks the
// resulting AST per grammarSpec, mirroring the teacher's
// parseGoAST/walkGoAST split (pkg/ingestion/parser_go.go) generalized
// across languages instead of hand-duplicated per language.
type treesitterExtractor struct {
	log    *slog.Logger
	lang   Language
	ts     *sitter.Language
	spec   grammarSpec
}

func newGoExtractor(log *slog.Logger) (Extractor, error) {
	return &treesitterExtractor{log: log, lang: LangGo, ts: golang.GetLanguage(), spec: goSpec}, nil
}

func newPythonExtractor(log *slog.Logger) (Extractor, error) {
	return &treesitterExtractor{log: log, lang: LangPython, ts: python.GetLanguage(), spec: pythonSpec}, nil
}

func newJSExtractor(log *slog.Logger) (Extractor, error) {
	return &treesitterExtractor{log: log, lang: LangJavaScript, ts: javascript.GetLanguage(), spec: jsSpec}, nil
}

func newTSExtractor(log *slog.Logger) (Extractor, error) {
	return &treesitterExtractor{log: log, lang: LangTypeScript, ts: typescript.GetLanguage(), spec: jsSpec}, nil
}

func newRustExtractor(log *slog.Logger) (Extractor, error) {
	return &treesitterExtractor{log: log, lang: LangRust, ts: rust.GetLanguage(), spec: rustSpec}, nil
}

func (e *treesitterExtractor) Extract(ctx context.Context, path string, content []byte) (*Result, error) {
	p := sitter.NewParser()
	p.SetLanguage(e.ts)
	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parser: tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		e.log.Warn("parser.treesitter.syntax_errors", "path", path, "language", e.lang)
	}

	result := &Result{}
	var parentStack []string // handle ids of enclosing def nodes, innermost last

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		nodeType := n.Type()

		if handleType, ok := e.spec.defNodeTypes[nodeType]; ok {
			nameNode := n.ChildByFieldName(e.spec.nameField)
			name := ""
			if nameNode != nil {
				name = nameNode.Content(content)
			}
			span := handle.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
			lines := handle.LineRange{Start: int(n.StartPoint().Row) + 1, End: int(n.EndPoint().Row) + 1}
			body := n.Content(content)
			id := handle.ID(path, span, name)

			parent := ""
			if len(parentStack) > 0 {
				parent = parentStack[len(parentStack)-1]
			}

			result.Nodes = append(result.Nodes, store.NodeRow{
				HandleID: id,
				FilePath: path,
				NodeType: handleType,
				Name:     name,
				Parent:   parent,
				Span:     span,
				Lines:    lines,
				Tokens:   EstimateTokens(body),
				Body:     body,
				Preview:  Preview(body, 100),
			})

			parentStack = append(parentStack, id)
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i))
			}
			parentStack = parentStack[:len(parentStack)-1]
			return
		}

		if nodeType == e.spec.callNodeType {
			fnNode := n.ChildByFieldName(e.spec.callNameField)
			if fnNode != nil {
				name := fnNode.Content(content)
				qualifier := ""
				if fnNode.Type() == "selector_expression" || fnNode.Type() == "member_expression" || fnNode.Type() == "attribute" || fnNode.Type() == "field_expression" {
					if op := fnNode.ChildByFieldName("operand"); op != nil {
						qualifier = op.Content(content)
					} else if val := fnNode.ChildByFieldName("value"); val != nil {
						qualifier = val.Content(content)
					}
					if field := fnNode.ChildByFieldName("field"); field != nil {
						name = field.Content(content)
					} else if attr := fnNode.ChildByFieldName("attribute"); attr != nil {
						name = attr.Content(content)
					}
				}
				source := ""
				if len(parentStack) > 0 {
					source = parentStack[len(parentStack)-1]
				}
				result.Refs = append(result.Refs, store.RefRow{
					FilePath:       path,
					Span:           handle.Span{Start: int(n.StartByte()), End: int(n.EndByte())},
					Lines:          handle.LineRange{Start: int(n.StartPoint().Row) + 1, End: int(n.EndPoint().Row) + 1},
					Name:           name,
					Qualifier:      qualifier,
					RefType:        handle.RefCall,
					SourceHandleID: source,
					Preview:        Preview(n.Content(content), 100),
				})
			}
		}

		if e.spec.importTypes[nodeType] {
			result.Refs = append(result.Refs, store.RefRow{
				FilePath: path,
				Span:     handle.Span{Start: int(n.StartByte()), End: int(n.EndByte())},
				Lines:    handle.LineRange{Start: int(n.StartPoint().Row) + 1, End: int(n.EndPoint().Row) + 1},
				Name:     n.Content(content),
				RefType:  handle.RefImport,
				Preview:  Preview(n.Content(content), 100),
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}

	walk(root)
	return result, nil
}
