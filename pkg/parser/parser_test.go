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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/handle"
)

func TestDetectLanguage(t *testing.T) {
	cases := map[string]Language{
		"a.go":          LangGo,
		"pkg/b.py":      LangPython,
		"x.jsx":         LangJavaScript,
		"y.tsx":         LangTypeScript,
		"lib.rs":        LangRust,
		"README.md":     LangMarkdown,
		"Makefile":      LangUnknown,
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestEstimateTokens_WhitespaceHeuristic(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	tokens := EstimateTokens(text)
	assert.Greater(t, tokens, 5)
	assert.Less(t, tokens, 20)
}

func TestEstimateTokens_DenseTextFallsBackToByteRatio(t *testing.T) {
	dense := strings.Repeat("x", 400)
	assert.Equal(t, len(dense)/tokenDivisor, EstimateTokens(dense))
}

func TestPreview_CollapsesWhitespaceAndTruncates(t *testing.T) {
	text := "func Foo() {\n\treturn\n}\n"
	assert.Equal(t, "func Foo() { return }", Preview(text, 100))

	long := strings.Repeat("a ", 200)
	p := Preview(long, 20)
	assert.LessOrEqual(t, len(p), 20)
	assert.True(t, strings.HasSuffix(p, "…"))
}

func TestChunker_SlidingWindowCoversWholeFile(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 120; i++ {
		sb.WriteString("line\n")
	}
	c := NewChunker(50, 10)
	result, err := c.Extract(context.Background(), "big.txt", []byte(sb.String()))
	require.NoError(t, err)
	require.NotEmpty(t, result.Nodes)

	last := result.Nodes[len(result.Nodes)-1]
	assert.Equal(t, 120, last.Lines.End)
	for _, n := range result.Nodes {
		assert.Equal(t, handle.NodeChunk, n.NodeType)
	}
}

func TestChunker_OverlapClampedBelowChunkSize(t *testing.T) {
	c := NewChunker(10, 50)
	assert.Equal(t, 9, c.overlapLines)
}

func TestMarkdownExtractor_ExtractsSectionsAndCodeBlocks(t *testing.T) {
	md := "# Title\n\nIntro paragraph.\n\n## Sub\n\n```go\nfunc main() {}\n```\n"
	m := NewMarkdownExtractor()
	result, err := m.Extract(context.Background(), "doc.md", []byte(md))
	require.NoError(t, err)

	var sections, codeBlocks, paragraphs int
	var subParent string
	for _, n := range result.Nodes {
		switch n.NodeType {
		case handle.NodeSection:
			sections++
			if n.Name == "Sub" {
				subParent = n.Parent
			}
		case handle.NodeCodeBlock:
			codeBlocks++
			assert.Contains(t, n.Body, "func main")
		case handle.NodeParagraph:
			paragraphs++
		}
	}
	assert.Equal(t, 2, sections)
	assert.Equal(t, 1, codeBlocks)
	assert.Equal(t, 1, paragraphs)
	assert.NotEmpty(t, subParent, "Sub section should be parented under Title")
}

func TestDispatcher_ExtractsRustFunctionsAndCalls(t *testing.T) {
	src := `
struct Server {
    addr: String,
}

impl Server {
    fn new(addr: String) -> Server {
        Server { addr }
    }
}

fn main() {
    let s = Server::new("127.0.0.1".to_string());
    validate(&s.addr);
}

fn validate(addr: &str) {}
`
	d := NewDispatcher(nil)
	result, err := d.ParseFile(context.Background(), "main.rs", []byte(src))
	require.NoError(t, err)

	var names []string
	var sawStruct bool
	for _, n := range result.Nodes {
		names = append(names, n.Name)
		if n.NodeType == handle.NodeStruct {
			sawStruct = true
		}
	}
	assert.Contains(t, names, "main")
	assert.Contains(t, names, "validate")
	assert.True(t, sawStruct, "expected the Server struct to be extracted")

	var sawValidateCall bool
	for _, r := range result.Refs {
		if r.Name == "validate" {
			sawValidateCall = true
		}
	}
	assert.True(t, sawValidateCall, "expected a call ref to validate()")
}

func TestDispatcher_FallsBackToChunkerForUnknownLanguage(t *testing.T) {
	d := NewDispatcher(nil)
	result, err := d.ParseFile(context.Background(), "Makefile", []byte("build:\n\tgo build ./...\n"))
	require.NoError(t, err)
	require.NotEmpty(t, result.Nodes)
	assert.Equal(t, handle.NodeChunk, result.Nodes[0].NodeType)
}

func TestDispatcher_TruncatesOversizedBodies(t *testing.T) {
	d := NewDispatcher(nil)
	d.SetMaxCodeTextSize(10)
	result, err := d.ParseFile(context.Background(), "Makefile", []byte("01234567890123456789\n"))
	require.NoError(t, err)
	require.NotEmpty(t, result.Nodes)
	assert.LessOrEqual(t, len(result.Nodes[0].Body), 10)
	assert.Equal(t, 1, d.GetTruncatedCount())
	d.ResetTruncatedCount()
	assert.Equal(t, 0, d.GetTruncatedCount())
}
