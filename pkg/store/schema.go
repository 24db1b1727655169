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

// schemaVersion is bumped whenever the DDL below changes shape. Open
// compares it against the value recorded in the meta table and returns
// ErrSchemaMismatch on a mismatch rather than attempting a migration.
const schemaVersion = 1

// schemaDDL creates every table and index the store needs. It is
// idempotent (IF NOT EXISTS throughout) so Open can run it unconditionally
// against a fresh or reopened database file.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	path            TEXT PRIMARY KEY,
	mtime_unix      INTEGER NOT NULL,
	size            INTEGER NOT NULL,
	content_sha     TEXT NOT NULL,
	last_gen        INTEGER NOT NULL DEFAULT 0,
	indexed_at_unix INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS nodes (
	handle_id   TEXT PRIMARY KEY,
	file_path   TEXT NOT NULL,
	node_type   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	parent      TEXT NOT NULL DEFAULT '',
	qualifier   TEXT NOT NULL DEFAULT '',
	span_start  INTEGER NOT NULL,
	span_end    INTEGER NOT NULL,
	line_start  INTEGER NOT NULL,
	line_end    INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	body        TEXT NOT NULL,
	preview     TEXT NOT NULL,
	FOREIGN KEY (file_path) REFERENCES files(path) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(file_path, parent);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	handle_id UNINDEXED,
	file_path UNINDEXED,
	body,
	tokenize = 'porter unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_symbol USING fts5(
	handle_id UNINDEXED,
	file_path UNINDEXED,
	name,
	tokenize = 'unicode61'
);

CREATE TABLE IF NOT EXISTS refs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path        TEXT NOT NULL,
	span_start       INTEGER NOT NULL,
	span_end         INTEGER NOT NULL,
	line_start       INTEGER NOT NULL,
	line_end         INTEGER NOT NULL,
	name             TEXT NOT NULL,
	qualifier        TEXT NOT NULL DEFAULT '',
	ref_type         TEXT NOT NULL,
	source_handle_id TEXT NOT NULL DEFAULT '',
	preview          TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (file_path) REFERENCES files(path) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_refs_name ON refs(name);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file_path);
CREATE INDEX IF NOT EXISTS idx_refs_source ON refs(source_handle_id);

CREATE TABLE IF NOT EXISTS feedback_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	time_unix   INTEGER NOT NULL,
	glob        TEXT NOT NULL DEFAULT '',
	node_type   TEXT NOT NULL DEFAULT '',
	handle_id   TEXT NOT NULL DEFAULT '',
	rank        INTEGER NOT NULL DEFAULT 0,
	was_useful  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_feedback_glob_type ON feedback_events(glob, node_type);
`

// The delete*Stmt statements below remove every row touching one file;
// each matches on the file path, refs included.
const deleteFileStmt = `DELETE FROM files WHERE path = ?`
const deleteNodesForFileStmt = `DELETE FROM nodes WHERE file_path = ?`
const deleteFTSContentForFileStmt = `DELETE FROM fts_content WHERE file_path = ?`
const deleteFTSSymbolForFileStmt = `DELETE FROM fts_symbol WHERE file_path = ?`
const deleteRefsForFileStmt = `DELETE FROM refs WHERE file_path = ?`
