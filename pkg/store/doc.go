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

// Package store implements Canopy's durable full-text and structural index.
//
// It is backed by SQLite (github.com/mattn/go-sqlite3) opened in WAL
// journal mode, which is what lets readers run concurrently with the
// single writer a batch commit requires. Two connection pools are kept per
// database file: a single-connection writer pool used exclusively while a
// Batch is open, and a multi-connection, read-only pool used by queries.
// PRAGMA mmap_size enables memory-mapped reads up to a configured window.
//
// # Schema
//
//	files        - path, mtime, size, hash, last_gen
//	nodes        - file_path, node_type, name, parent, qualifier, span,
//	               line range, tokens, handle_id
//	fts_content  - FTS5 virtual table over node body text
//	fts_symbol   - FTS5 virtual table over node names
//	refs         - file_path, span, name, qualifier, ref_type, source_handle_id
//	feedback_events - append-only FeedbackEvent log; its kind column
//	             holds query_event, query_event_handle or expand_event
//	             (spec §3, I6)
//
// # Transactions
//
// All writes go through Batch, which wraps a single *sql.Tx. A Batch
// commits at most 500 files per spec.md's durability budget; the caller is
// expected to start a new Batch for the next chunk of a larger changeset.
//
// # Schema versioning
//
// The on-disk schema carries a version integer in a "meta" table. A
// mismatch at open time triggers ErrSchemaMismatch, and the caller (the
// indexing pipeline) recreates the database from scratch - the
// "controlled recreation" spec.md §4.1 calls for.
package store
