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

package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/store"
)

// candidateCap bounds how many rows a single leaf query pulls from the
// store before combinators and the final limit trim the result; it keeps
// a broad union() of many leaves from materializing the whole corpus.
const candidateCap = 500

// Engine interprets the query algebra tree against a Store.
type Engine struct {
	store *store.Store
	log   *slog.Logger
}

// New builds an Engine over an already-open Store.
func New(st *store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: st, log: log}
}

// scoredNode pairs a NodeRow with its ranking term; lower is better,
// matching SQLite FTS5's bm25() convention. Leaves that have no natural
// rank (exact symbol lookup, file listing, ...) use rank 0, which makes
// the final sort fall through to the (file path, span_start) tie-break
// spec §4.5 specifies.
type scoredNode struct {
	store.NodeRow
	rank float64
}

type evalResult struct {
	nodes []scoredNode
	refs  []store.RefRow
}

// Execute interprets root and materializes handles. limit caps the
// number of handles returned; a limit ≤ 0 is normalized to
// defaultResultLimit by the caller (Compile/ParseSExpr already do this).
// expandBudget ≤ 0 disables auto-expand (spec §4.5's last paragraph);
// otherwise, when the returned handles' total token count fits the
// budget, Execute hydrates Content for every handle and sets
// AutoExpanded, so a caller with a generous budget can skip a second
// expand round trip.
func (e *Engine) Execute(ctx context.Context, root *Node, limit, expandBudget int) (*Result, error) {
	if limit <= 0 {
		limit = defaultResultLimit
	}
	evald, err := e.eval(ctx, root)
	if err != nil {
		return nil, err
	}

	sortNodes(evald.nodes)
	totalMatches := len(evald.nodes) + len(evald.refs)

	truncated := false
	nodes := evald.nodes
	if len(nodes) > limit {
		nodes = nodes[:limit]
		truncated = true
	}
	refs := evald.refs
	remaining := limit - len(nodes)
	if remaining < 0 {
		remaining = 0
	}
	if len(refs) > remaining {
		if remaining == 0 && len(evald.refs) > 0 {
			truncated = true
		} else if len(refs) > remaining {
			truncated = true
		}
		refs = refs[:remaining]
	}

	res := &Result{
		TotalMatches: totalMatches,
		Truncated:    truncated,
	}
	for _, n := range nodes {
		h := materializeHandle(n.NodeRow, n.rank)
		res.Handles = append(res.Handles, h)
		res.TotalTokens += h.TokenCount
	}
	for _, r := range refs {
		res.RefHandles = append(res.RefHandles, materializeRef(r))
	}

	if expandBudget > 0 && len(res.Handles) > 0 {
		if res.TotalTokens <= expandBudget {
			ids := make([]string, len(res.Handles))
			for i := range res.Handles {
				content, err := e.store.GetContent(ctx, res.Handles[i].ID)
				if err != nil {
					return nil, fmt.Errorf("query: auto-expand %s: %w", res.Handles[i].ID, err)
				}
				res.Handles[i].Content = content
				ids[i] = res.Handles[i].ID
			}
			res.AutoExpanded = true
			res.ExpandedHandleIDs = ids
		} else {
			res.ExpandNote = fmt.Sprintf(
				"expand_budget=%d is too small for %d handle(s) totaling %d tokens; call expand explicitly",
				expandBudget, len(res.Handles), res.TotalTokens)
		}
	}
	return res, nil
}

// materializeHandle builds the wire handle, carrying the raw FTS rank as
// Score (negated, since bm25's lower-is-better convention is the inverse
// of what the evidence packer's "higher is better" scorer expects; a
// rank of 0 means the leaf had no natural ranking, e.g. an exact symbol
// lookup).
func materializeHandle(n store.NodeRow, rank float64) handle.Handle {
	score := 0.0
	if rank != 0 {
		score = -rank
	}
	return handle.Handle{
		ID:         n.HandleID,
		FilePath:   n.FilePath,
		NodeType:   n.NodeType,
		Span:       n.Span,
		LineRange:  n.Lines,
		TokenCount: n.Tokens,
		Score:      score,
		Preview:    n.Preview,
		Name:       n.Name,
		Parent:     n.Parent,
		Qualifier:  n.Qualifier,
	}
}

func materializeRef(r store.RefRow) handle.RefHandle {
	return handle.RefHandle{
		FilePath:       r.FilePath,
		Span:           r.Span,
		LineRange:      r.Lines,
		Name:           r.Name,
		Qualifier:      r.Qualifier,
		RefType:        r.RefType,
		SourceHandleID: r.SourceHandleID,
		Preview:        r.Preview,
	}
}

func sortNodes(nodes []scoredNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].rank != nodes[j].rank {
			return nodes[i].rank < nodes[j].rank
		}
		if nodes[i].FilePath != nodes[j].FilePath {
			return nodes[i].FilePath < nodes[j].FilePath
		}
		return nodes[i].Span.Start < nodes[j].Span.Start
	})
}

func (e *Engine) eval(ctx context.Context, n *Node) (evalResult, error) {
	switch n.Kind {
	case KindText:
		scored, err := e.store.SearchText(ctx, n.Pattern, candidateCap)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: text %q: %w", n.Pattern, err)
		}
		return evalResult{nodes: toScored(scored)}, nil

	case KindSymbol:
		exact, err := e.store.ExactSymbol(ctx, n.Name, nil)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: symbol %q: %w", n.Name, err)
		}
		fuzzy, err := e.store.SearchSymbolFTS(ctx, n.Name, candidateCap)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: symbol fts %q: %w", n.Name, err)
		}
		out := dedupScored(append(unscored(exact), toScored(fuzzy)...))
		return evalResult{nodes: out}, nil

	case KindDefinition:
		exact, err := e.store.ExactSymbol(ctx, n.Name, nil)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: definition %q: %w", n.Name, err)
		}
		return evalResult{nodes: unscored(exact)}, nil

	case KindReferences:
		refs, err := e.store.RefsOf(ctx, n.Name, "")
		if err != nil {
			return evalResult{}, fmt.Errorf("query: references %q: %w", n.Name, err)
		}
		return evalResult{refs: refs}, nil

	case KindSection:
		exact, err := e.store.ExactSymbol(ctx, n.Section, nil)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: section %q: %w", n.Section, err)
		}
		var sections []store.NodeRow
		for _, row := range exact {
			if row.NodeType == handle.NodeSection {
				sections = append(sections, row)
			}
		}
		return evalResult{nodes: unscored(sections)}, nil

	case KindFile:
		rows, err := e.store.NodesInFile(ctx, n.Path)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: file %q: %w", n.Path, err)
		}
		return evalResult{nodes: unscored(rows)}, nil

	case KindParent:
		parents, err := e.store.ExactSymbol(ctx, n.Name, nil)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: parent %q: %w", n.Name, err)
		}
		var children []store.NodeRow
		for _, p := range parents {
			kids, err := e.store.ChildrenOf(ctx, p.HandleID)
			if err != nil {
				return evalResult{}, fmt.Errorf("query: children of %q: %w", n.Name, err)
			}
			children = append(children, kids...)
		}
		return evalResult{nodes: unscored(children)}, nil

	case KindChildrenNamed:
		parents, err := e.store.ExactSymbol(ctx, n.Name, nil)
		if err != nil {
			return evalResult{}, fmt.Errorf("query: children_named parent %q: %w", n.Name, err)
		}
		var children []store.NodeRow
		for _, p := range parents {
			kids, err := e.store.ChildrenNamed(ctx, p.HandleID, n.Child)
			if err != nil {
				return evalResult{}, fmt.Errorf("query: children_named %q/%q: %w", n.Name, n.Child, err)
			}
			children = append(children, kids...)
		}
		return evalResult{nodes: unscored(children)}, nil

	case KindInFile:
		inner, err := e.eval(ctx, n.Children[0])
		if err != nil {
			return evalResult{}, err
		}
		return evalResult{
			nodes: filterByGlob(inner.nodes, n.Glob),
			refs:  filterRefsByGlob(inner.refs, n.Glob),
		}, nil

	case KindUnion:
		var acc evalResult
		for _, c := range n.Children {
			r, err := e.eval(ctx, c)
			if err != nil {
				return evalResult{}, err
			}
			acc.nodes = append(acc.nodes, r.nodes...)
			acc.refs = append(acc.refs, r.refs...)
		}
		acc.nodes = dedupScored(acc.nodes)
		acc.refs = dedupRefs(acc.refs)
		return acc, nil

	case KindIntersect:
		if len(n.Children) == 0 {
			return evalResult{}, nil
		}
		first, err := e.eval(ctx, n.Children[0])
		if err != nil {
			return evalResult{}, err
		}
		nodeSets := make([]map[string]bool, 0, len(n.Children)-1)
		for _, c := range n.Children[1:] {
			r, err := e.eval(ctx, c)
			if err != nil {
				return evalResult{}, err
			}
			set := make(map[string]bool, len(r.nodes))
			for _, sn := range r.nodes {
				set[sn.HandleID] = true
			}
			nodeSets = append(nodeSets, set)
		}
		var kept []scoredNode
		for _, sn := range dedupScored(first.nodes) {
			inAll := true
			for _, set := range nodeSets {
				if !set[sn.HandleID] {
					inAll = false
					break
				}
			}
			if inAll {
				kept = append(kept, sn)
			}
		}
		return evalResult{nodes: kept}, nil

	case KindLimit:
		inner, err := e.eval(ctx, n.Children[0])
		if err != nil {
			return evalResult{}, err
		}
		sortNodes(inner.nodes)
		if n.Limit > 0 && len(inner.nodes) > n.Limit {
			inner.nodes = inner.nodes[:n.Limit]
		}
		if n.Limit > 0 && len(inner.refs) > n.Limit {
			inner.refs = inner.refs[:n.Limit]
		}
		return inner, nil

	default:
		return evalResult{}, fmt.Errorf("query: unknown node kind %q", n.Kind)
	}
}

func toScored(in []store.ScoredNode) []scoredNode {
	out := make([]scoredNode, len(in))
	for i, sn := range in {
		out[i] = scoredNode{NodeRow: sn.NodeRow, rank: sn.Rank}
	}
	return out
}

func unscored(in []store.NodeRow) []scoredNode {
	out := make([]scoredNode, len(in))
	for i, n := range in {
		out[i] = scoredNode{NodeRow: n}
	}
	return out
}

func dedupScored(in []scoredNode) []scoredNode {
	seen := make(map[string]bool, len(in))
	var out []scoredNode
	for _, sn := range in {
		if seen[sn.HandleID] {
			continue
		}
		seen[sn.HandleID] = true
		out = append(out, sn)
	}
	return out
}

func refKey(r store.RefRow) string {
	return fmt.Sprintf("%s|%d-%d|%s|%s", r.FilePath, r.Span.Start, r.Span.End, r.Name, r.Qualifier)
}

func dedupRefs(in []store.RefRow) []store.RefRow {
	seen := make(map[string]bool, len(in))
	var out []store.RefRow
	for _, r := range in {
		k := refKey(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func filterByGlob(in []scoredNode, glob string) []scoredNode {
	var out []scoredNode
	for _, sn := range in {
		if ok, _ := doublestar.Match(glob, sn.FilePath); ok {
			out = append(out, sn)
		}
	}
	return out
}

func filterRefsByGlob(in []store.RefRow, glob string) []store.RefRow {
	var out []store.RefRow
	for _, r := range in {
		if ok, _ := doublestar.Match(glob, r.FilePath); ok {
			out = append(out, r)
		}
	}
	return out
}
