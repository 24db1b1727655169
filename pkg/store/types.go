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

package store

import (
	"errors"

	"github.com/canopy-dev/canopy/pkg/handle"
)

// ErrSchemaMismatch is returned by Open when the on-disk schema version does
// not match the version this build expects. The caller is expected to
// recreate the database rather than attempt an in-place migration.
var ErrSchemaMismatch = errors.New("store: schema version mismatch")

// ErrNotFound is returned by lookups that address a single row.
var ErrNotFound = errors.New("store: not found")

// ErrBatchFull is returned by DeleteFile, UpsertFile and InsertNodesFor
// for a new file when a Batch has already
// accepted the maximum number of files for one transaction (spec §4.1).
var ErrBatchFull = errors.New("store: batch file limit reached")

// FileRecord is a row of the files table: the skip-policy bookkeeping for
// one indexed file.
type FileRecord struct {
	Path          string
	MTimeUnix     int64
	Size          int64
	ContentSHA    string
	LastGen       uint64
	IndexedAtUnix int64 // when this record was last written; drives the skip-policy TTL
}

// NodeRow is a row of the nodes table: one indexable unit discovered by the
// parser, prior to being surfaced as a handle.Handle.
type NodeRow struct {
	HandleID  string
	FilePath  string
	NodeType  handle.NodeType
	Name      string
	Parent    string
	Qualifier string
	Span      handle.Span
	Lines     handle.LineRange
	Tokens    int
	Body      string // raw text indexed into fts_content; not returned to callers
	Preview   string
}

// RefRow is a row of the refs table: one call/import/type_ref site.
type RefRow struct {
	FilePath       string
	Span           handle.Span
	Lines          handle.LineRange
	Name           string
	Qualifier      string
	RefType        handle.RefType
	SourceHandleID string
	Preview        string
}

// FeedbackKind enumerates the three feedback event shapes spec §3 (I6)
// defines.
type FeedbackKind string

const (
	FeedbackQuery       FeedbackKind = "query_event"
	FeedbackQueryHandle FeedbackKind = "query_event_handle"
	FeedbackExpand      FeedbackKind = "expand_event"
)

// FeedbackEvent is one append-only row recording ranker-relevant signal:
// either a query and the glob it matched, or a handle that was expanded.
type FeedbackEvent struct {
	Kind      FeedbackKind
	TimeUnix  int64
	Glob      string
	NodeType  handle.NodeType
	HandleID  string
	Rank      int
	WasUseful bool
}
