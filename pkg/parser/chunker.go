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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/store"
)

const (
	defaultChunkLines   = 50
	defaultChunkOverlap = 10
)

// Chunker is the language-agnostic fallback extractor: it slices a file
// into fixed-size, overlapping line windows, each surfaced as a
// handle.NodeChunk. It is what every file with no registered grammar
// (including every grammar's own parse errors) falls back to.
type Chunker struct {
	linesPerChunk int
	overlapLines  int
}

// NewChunker builds a Chunker. overlap must be less than linesPerChunk or
// it is clamped to linesPerChunk-1 to guarantee forward progress.
func NewChunker(linesPerChunk, overlap int) *Chunker {
	if linesPerChunk <= 0 {
		linesPerChunk = defaultChunkLines
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= linesPerChunk {
		overlap = linesPerChunk - 1
	}
	return &Chunker{linesPerChunk: linesPerChunk, overlapLines: overlap}
}

func (c *Chunker) Extract(_ context.Context, path string, content []byte) (*Result, error) {
	lines := splitLinesKeepOffsets(content)
	if len(lines) == 0 {
		return &Result{}, nil
	}

	step := c.linesPerChunk - c.overlapLines
	result := &Result{}
	for start := 0; start < len(lines); start += step {
		end := start + c.linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		span := handle.Span{Start: lines[start].start, End: lines[end-1].end}
		body := string(content[span.Start:span.End])
		name := fmt.Sprintf("%s:%d-%d", path, start+1, end)
		result.Nodes = append(result.Nodes, store.NodeRow{
			HandleID: handle.ID(path, span, name),
			FilePath: path,
			NodeType: handle.NodeChunk,
			Name:     name,
			Span:     span,
			Lines:    handle.LineRange{Start: start + 1, End: end},
			Tokens:   EstimateTokens(body),
			Body:     body,
			Preview:  Preview(body, 100),
		})
		if end >= len(lines) {
			break
		}
	}
	return result, nil
}

type lineSpan struct{ start, end int }

func splitLinesKeepOffsets(content []byte) []lineSpan {
	var spans []lineSpan
	start := 0
	for i, b := range content {
		if b == '\n' {
			spans = append(spans, lineSpan{start: start, end: i + 1})
			start = i + 1
		}
	}
	if start < len(content) {
		spans = append(spans, lineSpan{start: start, end: len(content)})
	}
	return spans
}

// MarkdownExtractor scans Markdown into section, code_block, and
// paragraph nodes by tracking heading depth and fenced code blocks
// line-by-line; Markdown's structure is shallow enough that a full
// grammar buys little over a line scan.
type MarkdownExtractor struct{}

func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

func (m *MarkdownExtractor) Extract(_ context.Context, path string, content []byte) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	type openBlock struct {
		id    string
		depth int
	}
	var stack []openBlock
	var inFence bool
	var fenceStart int
	var fenceBodyLines []string
	lineNo := 0
	byteOffset := 0

	flushParagraph := func(lines []string, startLine, startByte, endByte int) {
		if len(lines) == 0 {
			return
		}
		body := strings.Join(lines, "\n")
		if strings.TrimSpace(body) == "" {
			return
		}
		span := handle.Span{Start: startByte, End: endByte}
		name := fmt.Sprintf("%s:p%d", path, startLine)
		result.Nodes = append(result.Nodes, store.NodeRow{
			HandleID: handle.ID(path, span, name),
			FilePath: path,
			NodeType: handle.NodeParagraph,
			Name:     name,
			Span:     span,
			Lines:    handle.LineRange{Start: startLine, End: startLine + len(lines) - 1},
			Tokens:   EstimateTokens(body),
			Body:     body,
			Preview:  Preview(body, 100),
		})
	}

	var paragraphLines []string
	paragraphStart := 0
	paragraphByteStart := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		lineStartByte := byteOffset
		byteOffset += len(line) + 1

		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if !inFence {
				inFence = true
				fenceStart = lineNo
				fenceBodyLines = nil
				flushParagraph(paragraphLines, paragraphStart, paragraphByteStart, lineStartByte)
				paragraphLines = nil
			} else {
				inFence = false
				body := strings.Join(fenceBodyLines, "\n")
				span := handle.Span{Start: lineStartByte - len(body), End: lineStartByte + len(line)}
				name := fmt.Sprintf("%s:code%d", path, fenceStart)
				result.Nodes = append(result.Nodes, store.NodeRow{
					HandleID: handle.ID(path, span, name),
					FilePath: path,
					NodeType: handle.NodeCodeBlock,
					Name:     name,
					Span:     span,
					Lines:    handle.LineRange{Start: fenceStart, End: lineNo},
					Tokens:   EstimateTokens(body),
					Body:     body,
					Preview:  Preview(body, 100),
				})
			}
			continue
		}
		if inFence {
			fenceBodyLines = append(fenceBodyLines, line)
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			flushParagraph(paragraphLines, paragraphStart, paragraphByteStart, lineStartByte)
			paragraphLines = nil

			depth := 0
			for depth < len(trimmed) && trimmed[depth] == '#' {
				depth++
			}
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			span := handle.Span{Start: lineStartByte, End: lineStartByte + len(line)}
			id := handle.ID(path, span, title)

			parent := ""
			for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 {
				parent = stack[len(stack)-1].id
			}
			stack = append(stack, openBlock{id: id, depth: depth})

			result.Nodes = append(result.Nodes, store.NodeRow{
				HandleID: id,
				FilePath: path,
				NodeType: handle.NodeSection,
				Name:     title,
				Parent:   parent,
				Span:     span,
				Lines:    handle.LineRange{Start: lineNo, End: lineNo},
				Tokens:   EstimateTokens(title),
				Body:     title,
				Preview:  Preview(title, 100),
			})
			continue
		}

		if trimmed == "" {
			flushParagraph(paragraphLines, paragraphStart, paragraphByteStart, lineStartByte)
			paragraphLines = nil
			continue
		}
		if len(paragraphLines) == 0 {
			paragraphStart = lineNo
			paragraphByteStart = lineStartByte
		}
		paragraphLines = append(paragraphLines, line)
	}
	flushParagraph(paragraphLines, paragraphStart, paragraphByteStart, byteOffset)

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parser: scan markdown %s: %w", path, err)
	}
	return result, nil
}
