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

// Package handle defines the value types returned to callers of the query
// engine: Handle and RefHandle, plus the deterministic id scheme that keeps
// handle ids stable across processes and hosts for identical
// (path, span, name) triples.
package handle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// NodeType enumerates the kinds of node a Handle can describe.
type NodeType string

const (
	NodeFunction  NodeType = "function"
	NodeClass     NodeType = "class"
	NodeStruct    NodeType = "struct"
	NodeMethod    NodeType = "method"
	NodeSection   NodeType = "section"
	NodeCodeBlock NodeType = "code_block"
	NodeParagraph NodeType = "paragraph"
	NodeChunk     NodeType = "chunk"
)

// RefType enumerates the kinds of reference a RefHandle can describe.
type RefType string

const (
	RefCall    RefType = "call"
	RefImport  RefType = "import"
	RefTypeRef RefType = "type_ref"
)

// Span is a byte range within a file, end-exclusive.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// LineRange is a 1-indexed, inclusive line range.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Source identifies where a handle was produced, used by Runtime's auto
// merge (spec §4.8) to distinguish service results from the local overlay.
type Source string

const (
	SourceLocal   Source = "local"
	SourceService Source = "service"
)

// Handle is the unit of retrieval: a stable id plus enough metadata for an
// agent to decide whether to expand it, without shipping file contents.
type Handle struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"file_path"`
	NodeType   NodeType  `json:"node_type"`
	Span       Span      `json:"span"`
	LineRange  LineRange `json:"line_range"`
	TokenCount int       `json:"token_count"`
	Preview    string    `json:"preview"`
	Name       string    `json:"name,omitempty"`
	Parent     string    `json:"parent,omitempty"`
	Qualifier  string    `json:"qualifier,omitempty"`
	Content    string    `json:"content,omitempty"`

	// Populated only in service mode (spec §4.9, I4).
	Source     Source `json:"source,omitempty"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	Generation uint64 `json:"generation,omitempty"`

	// Score is the ranker's internal ordering key (spec §4.6). It is not
	// part of the wire envelope but is carried alongside the handle while
	// the evidence packer sorts and diversifies results.
	Score float64 `json:"-"`
}

// RefHandle describes a single reference (call/import/type_ref) discovered
// by a kind=reference query.
type RefHandle struct {
	FilePath       string    `json:"file_path"`
	Span           Span      `json:"span"`
	LineRange      LineRange `json:"line_range"`
	Name           string    `json:"name"`
	Qualifier      string    `json:"qualifier,omitempty"`
	RefType        RefType   `json:"ref_type"`
	SourceHandleID string    `json:"source_handle,omitempty"`
	Preview        string    `json:"preview"`

	Source     Source `json:"source,omitempty"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}

// ID computes the deterministic handle id for (path, span, name).
//
// Format: 'h' + 24 lowercase hex characters (25 chars total), a truncated
// SHA-256 digest of the UTF-8 triple. Two nodes sharing (path, span, name)
// always share an id (invariant I3); the name component is included so that
// a function and an enclosing class starting at the same byte offset never
// collide.
func ID(filePath string, span Span, name string) string {
	normalized := normalizePath(filePath)
	key := fmt.Sprintf("%s|%d-%d|%s", normalized, span.Start, span.End, name)
	sum := sha256.Sum256([]byte(key))
	return "h" + hex.EncodeToString(sum[:])[:24]
}

// normalizePath mirrors the path normalization the store uses for file
// identity, so a handle id never depends on the caller's cwd or OS.
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.ToSlash(filepath.Clean(path))
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
