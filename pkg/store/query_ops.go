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
	"context"
	"database/sql"
	"fmt"

	"github.com/canopy-dev/canopy/pkg/handle"
)

// ScoredNode pairs a NodeRow with the FTS rank bm25() produced, the raw
// lexical term the evidence packer's scorer (spec §4.6) starts from.
type ScoredNode struct {
	NodeRow
	Rank float64
}

const nodeColumns = `handle_id, file_path, node_type, name, parent, qualifier,
	span_start, span_end, line_start, line_end, tokens, body, preview`

// nodeColumnsQualified is nodeColumns with every column prefixed by the
// nodes table alias, needed whenever nodes is joined against an FTS
// virtual table that shares column names (fts_content/fts_symbol both
// carry handle_id and file_path).
const nodeColumnsQualified = `n.handle_id, n.file_path, n.node_type, n.name, n.parent, n.qualifier,
	n.span_start, n.span_end, n.line_start, n.line_end, n.tokens, n.body, n.preview`

func scanNode(row interface{ Scan(...any) error }) (NodeRow, error) {
	var n NodeRow
	var nodeType, refType string
	_ = refType
	err := row.Scan(&n.HandleID, &n.FilePath, &nodeType, &n.Name, &n.Parent,
		&n.Qualifier, &n.Span.Start, &n.Span.End, &n.Lines.Start, &n.Lines.End,
		&n.Tokens, &n.Body, &n.Preview)
	n.NodeType = handle.NodeType(nodeType)
	return n, err
}

// ExactSymbol finds nodes whose name matches exactly, optionally scoped to
// a glob-matched set of files via inFiles (nil means unscoped).
func (s *Store) ExactSymbol(ctx context.Context, name string, inFiles []string) ([]NodeRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM nodes WHERE name = ?`, nodeColumns)
	args := []any{name}
	if len(inFiles) > 0 {
		query += fmt.Sprintf(" AND file_path IN (%s)", placeholders(len(inFiles)))
		args = append(args, toAnySlice(inFiles)...)
	}
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: exact symbol %q: %w", name, err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SearchText runs a full-text query against node bodies using FTS5's
// bm25() ranking, the lexical term of the evidence scorer.
func (s *Store) SearchText(ctx context.Context, matchExpr string, limit int) ([]ScoredNode, error) {
	rows, err := s.readDB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, bm25(fts_content) AS rank
		FROM fts_content
		JOIN nodes n ON n.handle_id = fts_content.handle_id
		WHERE fts_content MATCH ?
		ORDER BY rank
		LIMIT ?`, nodeColumnsQualified),
		matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search text %q: %w", matchExpr, err)
	}
	defer rows.Close()

	var out []ScoredNode
	for rows.Next() {
		var sn ScoredNode
		var nodeType string
		if err := rows.Scan(&sn.HandleID, &sn.FilePath, &nodeType, &sn.Name,
			&sn.Parent, &sn.Qualifier, &sn.Span.Start, &sn.Span.End,
			&sn.Lines.Start, &sn.Lines.End, &sn.Tokens, &sn.Body, &sn.Preview,
			&sn.Rank); err != nil {
			return nil, fmt.Errorf("store: scan scored node: %w", err)
		}
		sn.NodeType = handle.NodeType(nodeType)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// SearchSymbolFTS runs a fuzzy/prefix FTS query over symbol names, used
// when a symbol query is not an exact match (e.g. a camelCase fragment).
func (s *Store) SearchSymbolFTS(ctx context.Context, matchExpr string, limit int) ([]ScoredNode, error) {
	rows, err := s.readDB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, bm25(fts_symbol) AS rank
		FROM fts_symbol
		JOIN nodes n ON n.handle_id = fts_symbol.handle_id
		WHERE fts_symbol MATCH ?
		ORDER BY rank
		LIMIT ?`, nodeColumnsQualified),
		matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search symbol %q: %w", matchExpr, err)
	}
	defer rows.Close()

	var out []ScoredNode
	for rows.Next() {
		var sn ScoredNode
		var nodeType string
		if err := rows.Scan(&sn.HandleID, &sn.FilePath, &nodeType, &sn.Name,
			&sn.Parent, &sn.Qualifier, &sn.Span.Start, &sn.Span.End,
			&sn.Lines.Start, &sn.Lines.End, &sn.Tokens, &sn.Body, &sn.Preview,
			&sn.Rank); err != nil {
			return nil, fmt.Errorf("store: scan scored symbol: %w", err)
		}
		sn.NodeType = handle.NodeType(nodeType)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// RefsOf returns every reference site for name, optionally scoped to a
// single source handle (spec §4.3, kind=references with source_handle).
func (s *Store) RefsOf(ctx context.Context, name string, sourceHandleID string) ([]RefRow, error) {
	query := `SELECT file_path, span_start, span_end, line_start, line_end,
		name, qualifier, ref_type, source_handle_id, preview FROM refs WHERE name = ?`
	args := []any{name}
	if sourceHandleID != "" {
		query += " AND source_handle_id = ?"
		args = append(args, sourceHandleID)
	}
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: refs of %q: %w", name, err)
	}
	defer rows.Close()

	var out []RefRow
	for rows.Next() {
		var r RefRow
		var refType string
		if err := rows.Scan(&r.FilePath, &r.Span.Start, &r.Span.End,
			&r.Lines.Start, &r.Lines.End, &r.Name, &r.Qualifier, &refType,
			&r.SourceHandleID, &r.Preview); err != nil {
			return nil, fmt.Errorf("store: scan ref: %w", err)
		}
		r.RefType = handle.RefType(refType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// NodesInFile returns every node indexed for path, ordered by byte span,
// used by kind=file and kind=children_named.
func (s *Store) NodesInFile(ctx context.Context, path string) ([]NodeRow, error) {
	rows, err := s.readDB.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM nodes WHERE file_path = ? ORDER BY span_start`, nodeColumns), path)
	if err != nil {
		return nil, fmt.Errorf("store: nodes in file %s: %w", path, err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ChildrenNamed returns direct children of parentHandleID whose name
// matches name exactly.
func (s *Store) ChildrenNamed(ctx context.Context, parentHandleID, name string) ([]NodeRow, error) {
	rows, err := s.readDB.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM nodes WHERE parent = ? AND name = ?`, nodeColumns),
		parentHandleID, name)
	if err != nil {
		return nil, fmt.Errorf("store: children of %s named %q: %w", parentHandleID, name, err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ChildrenOf returns every direct child of parentHandleID regardless of
// name, used by kind=parent queries that want the whole child set.
func (s *Store) ChildrenOf(ctx context.Context, parentHandleID string) ([]NodeRow, error) {
	rows, err := s.readDB.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM nodes WHERE parent = ? ORDER BY span_start`, nodeColumns),
		parentHandleID)
	if err != nil {
		return nil, fmt.Errorf("store: children of %s: %w", parentHandleID, err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetContent loads the full body text for a handle id, used by the
// expand operation (spec §4.9) to hydrate Handle.Content on demand.
func (s *Store) GetContent(ctx context.Context, handleID string) (string, error) {
	var body string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT body FROM nodes WHERE handle_id = ?`, handleID).Scan(&body)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get content %s: %w", handleID, err)
	}
	return body, nil
}

// BatchLoadMetadata loads NodeRow metadata (without body text) for a set
// of handle ids in one round trip, used to hydrate query results without
// an N+1 query per handle.
func (s *Store) BatchLoadMetadata(ctx context.Context, handleIDs []string) (map[string]NodeRow, error) {
	if len(handleIDs) == 0 {
		return map[string]NodeRow{}, nil
	}
	query := fmt.Sprintf(`SELECT handle_id, file_path, node_type, name, parent, qualifier,
		span_start, span_end, line_start, line_end, tokens, '' AS body, preview
		FROM nodes WHERE handle_id IN (%s)`, placeholders(len(handleIDs)))
	rows, err := s.readDB.QueryContext(ctx, query, toAnySlice(handleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("store: batch load metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]NodeRow, len(handleIDs))
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		out[n.HandleID] = n
	}
	return out, rows.Err()
}

// FileRecord loads the skip-policy row for path, returning ErrNotFound if
// the file has never been indexed.
func (s *Store) FileRecord(ctx context.Context, path string) (FileRecord, error) {
	var rec FileRecord
	rec.Path = path
	err := s.readDB.QueryRowContext(ctx,
		`SELECT mtime_unix, size, content_sha, last_gen, indexed_at_unix FROM files WHERE path = ?`, path,
	).Scan(&rec.MTimeUnix, &rec.Size, &rec.ContentSHA, &rec.LastGen, &rec.IndexedAtUnix)
	if err == sql.ErrNoRows {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("store: file record %s: %w", path, err)
	}
	return rec, nil
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
