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
	"database/sql"
	"fmt"
)

// MaxBatchFiles is the durability budget spec.md §4.1 sets for a single
// write transaction: at most this many distinct files are re-indexed
// before a Batch must Commit and the caller opens a new one.
const MaxBatchFiles = 500

// Batch is a single SQL transaction covering up to MaxBatchFiles files.
// It is not safe for concurrent use; callers serialize writes through the
// single DB-writer goroutine the indexing pipeline runs (spec §6).
type Batch struct {
	store     *Store
	tx        *sql.Tx
	fileCount int
	seenFiles map[string]bool
}

// BeginBatch starts a new write transaction. Only one Batch may be open on
// a Store at a time; BeginBatch blocks until any previous Batch has
// Committed or been Aborted.
func (s *Store) BeginBatch() (*Batch, error) {
	s.writeMu.Lock()
	tx, err := s.writeDB.Begin()
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("store: begin batch: %w", err)
	}
	return &Batch{store: s, tx: tx, seenFiles: make(map[string]bool)}, nil
}

// DeleteFile removes every node, ref, and FTS row belonging to path. It is
// used both for deletions detected by the discovery walk and as the first
// step of reindexing a changed file.
func (b *Batch) DeleteFile(path string) error {
	if err := b.touchFile(path); err != nil {
		return err
	}
	for _, stmt := range []string{
		deleteFTSContentForFileStmt,
		deleteFTSSymbolForFileStmt,
		deleteRefsForFileStmt,
		deleteNodesForFileStmt,
		deleteFileStmt,
	} {
		if _, err := b.tx.Exec(stmt, path); err != nil {
			return fmt.Errorf("store: delete file %s: %w", path, err)
		}
	}
	return nil
}

// touchFile records that path participates in this batch, enforcing
// MaxBatchFiles.
func (b *Batch) touchFile(path string) error {
	if b.seenFiles[path] {
		return nil
	}
	if b.fileCount >= MaxBatchFiles {
		return ErrBatchFull
	}
	b.seenFiles[path] = true
	b.fileCount++
	return nil
}

// UpsertFile records (or updates) a file's skip-policy metadata.
func (b *Batch) UpsertFile(rec FileRecord) error {
	if err := b.touchFile(rec.Path); err != nil {
		return err
	}
	_, err := b.tx.Exec(`
		INSERT INTO files(path, mtime_unix, size, content_sha, last_gen, indexed_at_unix)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime_unix = excluded.mtime_unix,
			size = excluded.size,
			content_sha = excluded.content_sha,
			last_gen = excluded.last_gen,
			indexed_at_unix = excluded.indexed_at_unix`,
		rec.Path, rec.MTimeUnix, rec.Size, rec.ContentSHA, rec.LastGen, rec.IndexedAtUnix)
	if err != nil {
		return fmt.Errorf("store: upsert file %s: %w", rec.Path, err)
	}
	return nil
}

// InsertNodesFor writes every node and ref parsed from one file, replacing
// whatever was previously indexed for it. The caller calls DeleteFile
// first when reindexing an already-known file.
func (b *Batch) InsertNodesFor(path string, nodes []NodeRow, refs []RefRow) error {
	if err := b.touchFile(path); err != nil {
		return err
	}
	for _, n := range nodes {
		if _, err := b.tx.Exec(`
			INSERT INTO nodes(handle_id, file_path, node_type, name, parent,
				qualifier, span_start, span_end, line_start, line_end, tokens,
				body, preview)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(handle_id) DO UPDATE SET
				file_path = excluded.file_path,
				node_type = excluded.node_type,
				name = excluded.name,
				parent = excluded.parent,
				qualifier = excluded.qualifier,
				span_start = excluded.span_start,
				span_end = excluded.span_end,
				line_start = excluded.line_start,
				line_end = excluded.line_end,
				tokens = excluded.tokens,
				body = excluded.body,
				preview = excluded.preview`,
			n.HandleID, n.FilePath, string(n.NodeType), n.Name, n.Parent,
			n.Qualifier, n.Span.Start, n.Span.End, n.Lines.Start, n.Lines.End,
			n.Tokens, n.Body, n.Preview); err != nil {
			return fmt.Errorf("store: insert node %s: %w", n.HandleID, err)
		}

		if _, err := b.tx.Exec(
			`INSERT INTO fts_content(handle_id, file_path, body) VALUES(?, ?, ?)`,
			n.HandleID, n.FilePath, n.Body); err != nil {
			return fmt.Errorf("store: insert fts_content %s: %w", n.HandleID, err)
		}
		if _, err := b.tx.Exec(
			`INSERT INTO fts_symbol(handle_id, file_path, name) VALUES(?, ?, ?)`,
			n.HandleID, n.FilePath, n.Name); err != nil {
			return fmt.Errorf("store: insert fts_symbol %s: %w", n.HandleID, err)
		}
	}

	for _, r := range refs {
		if _, err := b.tx.Exec(`
			INSERT INTO refs(file_path, span_start, span_end, line_start,
				line_end, name, qualifier, ref_type, source_handle_id, preview)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.FilePath, r.Span.Start, r.Span.End, r.Lines.Start, r.Lines.End,
			r.Name, r.Qualifier, string(r.RefType), r.SourceHandleID, r.Preview); err != nil {
			return fmt.Errorf("store: insert ref %s@%s: %w", r.Name, r.FilePath, err)
		}
	}
	return nil
}

// RecordFeedback appends one feedback event (spec §3, I6) inside this
// Batch's transaction. Query-time callers open a short-lived Batch solely
// to record feedback, so their write waits until any open indexing Batch
// has committed or aborted.
func (b *Batch) RecordFeedback(ev FeedbackEvent) error {
	_, err := b.tx.Exec(`
		INSERT INTO feedback_events(kind, time_unix, glob, node_type, handle_id, rank, was_useful)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), ev.TimeUnix, ev.Glob, string(ev.NodeType), ev.HandleID,
		ev.Rank, boolToInt(ev.WasUseful))
	if err != nil {
		return fmt.Errorf("store: record feedback: %w", err)
	}
	return nil
}

// Commit finalizes the transaction and releases the Store's write lock.
func (b *Batch) Commit() error {
	defer b.store.writeMu.Unlock()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	b.store.log.Info("store.batch_commit", "files", b.fileCount)
	return nil
}

// Abort rolls back the transaction and releases the Store's write lock.
// Commit releases that lock too, so calling Abort after Commit unlocks it
// a second time, which is a fatal runtime error; the callers in this
// module abort only a Batch they have not committed.
func (b *Batch) Abort() error {
	defer b.store.writeMu.Unlock()
	return b.tx.Rollback()
}

// FileCount reports how many distinct files have touched this batch so
// far, so a caller streaming files into one long reindex knows when to
// Commit and start a fresh Batch.
func (b *Batch) FileCount() int {
	return b.fileCount
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
