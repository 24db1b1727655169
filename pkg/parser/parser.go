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

// Package parser turns file contents into the store.NodeRow/store.RefRow
// pairs the indexing pipeline writes. A Dispatcher picks a language-aware
// extractor by file extension, backed by Tree-sitter grammars where one is
// available and by a fixed-size line chunker everywhere else (spec §4.1,
// "language-agnostic fallback").
package parser

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/canopy-dev/canopy/pkg/store"
)

// Language identifies the grammar (or absence of one) a file should be
// parsed with.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangMarkdown   Language = "markdown"
	LangUnknown    Language = "unknown"
)

// Result is everything one file contributes to the index.
type Result struct {
	Nodes []store.NodeRow
	Refs  []store.RefRow
}

// Extractor parses one file's content into a Result. Implementations may
// be Tree-sitter-backed or pure text heuristics; the Dispatcher is the
// only caller that needs to know which.
type Extractor interface {
	Extract(ctx context.Context, path string, content []byte) (*Result, error)
}

// DetectLanguage maps a file extension to a Language. Unknown extensions
// fall back to LangUnknown, which the Dispatcher routes to the line
// chunker rather than failing the file outright.
func DetectLanguage(path string) Language {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".go"):
		return LangGo
	case strings.HasSuffix(lower, ".py"):
		return LangPython
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".jsx"), strings.HasSuffix(lower, ".mjs"):
		return LangJavaScript
	case strings.HasSuffix(lower, ".ts"), strings.HasSuffix(lower, ".tsx"):
		return LangTypeScript
	case strings.HasSuffix(lower, ".rs"):
		return LangRust
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return LangMarkdown
	default:
		return LangUnknown
	}
}

// Dispatcher routes a file to the right Extractor by language and tracks
// the truncation counters the CLI's index summary reports.
type Dispatcher struct {
	log *slog.Logger

	maxCodeTextSize int64
	truncated       int64 // atomic

	extractors map[Language]Extractor
	fallback   Extractor
}

// NewDispatcher builds the Tree-sitter extractors Go/Python/JS/TS/Rust
// support and wires in the Markdown and fallback chunker extractors. A
// grammar that fails to load (CGO unavailable, grammar panic) is skipped
// rather than failing the whole Dispatcher; files in that language
// silently fall back to the line chunker, matching the teacher's "auto"
// parser mode.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:             log,
		maxCodeTextSize: defaultMaxCodeTextSize,
		extractors:      make(map[Language]Extractor),
		fallback:        NewChunker(defaultChunkLines, defaultChunkOverlap),
	}

	for lang, build := range map[Language]func(*slog.Logger) (Extractor, error){
		LangGo:         newGoExtractor,
		LangPython:     newPythonExtractor,
		LangJavaScript: newJSExtractor,
		LangTypeScript: newTSExtractor,
		LangRust:       newRustExtractor,
	} {
		ext, err := build(log)
		if err != nil {
			log.Warn("parser.grammar_unavailable", "language", lang, "error", err)
			continue
		}
		d.extractors[lang] = ext
	}
	d.extractors[LangMarkdown] = NewMarkdownExtractor()

	return d
}

// SetMaxCodeTextSize caps how many bytes of a node's body are retained;
// content beyond the cap is truncated and counted (mirrors the teacher's
// CodeParser.SetMaxCodeTextSize).
func (d *Dispatcher) SetMaxCodeTextSize(size int64) {
	atomic.StoreInt64(&d.maxCodeTextSize, size)
}

// GetTruncatedCount reports how many node bodies have been truncated
// since the last ResetTruncatedCount.
func (d *Dispatcher) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&d.truncated))
}

// ResetTruncatedCount zeroes the truncation counter, called once per
// indexing run.
func (d *Dispatcher) ResetTruncatedCount() {
	atomic.StoreInt64(&d.truncated, 0)
}

// ParseFile extracts nodes and refs for one file, selecting the extractor
// by DetectLanguage and falling back to the line chunker when no grammar
// is registered for the detected language (including LangUnknown).
func (d *Dispatcher) ParseFile(ctx context.Context, path string, content []byte) (*Result, error) {
	lang := DetectLanguage(path)
	ext, ok := d.extractors[lang]
	if !ok {
		ext = d.fallback
	}

	result, err := ext.Extract(ctx, path, content)
	if err != nil {
		d.log.Warn("parser.extract_failed", "path", path, "language", lang, "error", err)
		return d.fallback.Extract(ctx, path, content)
	}

	max := atomic.LoadInt64(&d.maxCodeTextSize)
	if max > 0 {
		for i := range result.Nodes {
			if int64(len(result.Nodes[i].Body)) > max {
				result.Nodes[i].Body = result.Nodes[i].Body[:max]
				atomic.AddInt64(&d.truncated, 1)
			}
		}
	}
	return result, nil
}

const defaultMaxCodeTextSize = 64 * 1024

// tokenDivisor approximates 4 bytes per token, the fallback spec §4.1
// Design Note D3 prescribes when no richer estimate is available. It is
// intentionally crude: the query engine only needs a monotonic proxy for
// "how much of the context budget will this handle cost."
const tokenDivisor = 4

var wordSplitter = sync.OnceValue(func() func(rune) bool {
	return func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}
})

// EstimateTokens approximates a GPT-style token count for text. It
// prefers a whitespace-word heuristic (words * 1.3, close enough for
// prose and most source) and falls back to bytes/4 for inputs with no
// whitespace at all (minified JS, base64 blobs) where the word heuristic
// would wildly undercount.
func EstimateTokens(text string) int {
	words := strings.FieldsFunc(text, wordSplitter())
	if len(words) == 0 {
		return len(text) / tokenDivisor
	}
	estimate := int(float64(len(words)) * 1.3)
	if estimate < len(text)/tokenDivisor {
		// Dense code with little whitespace: bytes/4 is the safer (larger)
		// estimate, and callers budget against the larger number.
		return len(text) / tokenDivisor
	}
	return estimate
}

// Preview collapses text to a single whitespace-normalized line capped at
// maxBytes, the summary an agent sees before deciding whether to expand
// a handle (spec §4.2, I2).
func Preview(text string, maxBytes int) string {
	fields := strings.Fields(text)
	joined := strings.Join(fields, " ")
	if len(joined) <= maxBytes {
		return joined
	}
	const ellipsis = "…"
	if maxBytes <= len(ellipsis) {
		return joined[:maxBytes]
	}
	return joined[:maxBytes-len(ellipsis)] + ellipsis
}
