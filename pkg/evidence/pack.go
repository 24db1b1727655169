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

package evidence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/store"
)

// Options controls one Pack call.
type Options struct {
	MaxPerFile int // default 2
	MaxHandles int // default 8
	Glob       string
	Plan       bool
}

const (
	defaultMaxPerFile = 2
	defaultMaxHandles = 8
	recentMemorySize  = 32

	// confidenceThreshold is the per-handle score a handle must clear to
	// count toward "enough strong evidence" in Guidance synthesis.
	confidenceThreshold = 0.3
)

// RecommendedAction enumerates the two guidance outcomes spec §4.6
// defines.
type RecommendedAction string

const (
	ActionRefineQuery     RecommendedAction = "refine_query"
	ActionExpandThenAnswer RecommendedAction = "expand_then_answer"
)

// Guidance is the evidence packer's verdict on what the caller should do
// next, synthesized from how strong and how diverse the pack is.
type Guidance struct {
	StopQuerying          bool              `json:"stop_querying"`
	RecommendedAction     RecommendedAction `json:"recommended_action"`
	SuggestedExpandCount  int               `json:"suggested_expand_count"`
	MaxAdditionalQueries  int               `json:"max_additional_queries"`
	Confidence            float64          `json:"confidence"`
	ConfidenceLabel        string           `json:"confidence_label"`
	NextStep              string            `json:"next_step"`
}

// Pack is the evidence packer's output: a diversified, rescored handle
// list plus guidance, with no snippets beyond the preview each handle
// already carries.
type Pack struct {
	Handles      []handle.Handle    `json:"handles"`
	RefHandles   []handle.RefHandle `json:"ref_handles"`
	TotalTokens  int                `json:"total_tokens"`
	TotalMatches int                `json:"total_matches"`
	Truncated    bool               `json:"truncated"`
	Guidance     Guidance           `json:"guidance"`

	// Set when the caller's expand_budget fit (or didn't fit) the
	// underlying query.Result, carried through from query.Engine.Execute
	// (spec §4.5's auto-expand paragraph).
	AutoExpanded      bool     `json:"auto_expanded,omitempty"`
	ExpandedHandleIDs []string `json:"expanded_handle_ids,omitempty"`
	ExpandNote        string   `json:"expand_note,omitempty"`
}

// Packer scores, diversifies, and synthesizes guidance for query
// results, and records the feedback events that close the ranking loop.
type Packer struct {
	store *store.Store
}

// New builds a Packer over an already-open Store.
func New(st *store.Store) *Packer {
	return &Packer{store: st}
}

// Pack builds an evidence pack from a query.Result. When opts.Plan is set
// and the pack's confidence is low, its guidance allows one additional
// query (MaxAdditionalQueries = 1); Pack itself runs no further query.
func (p *Packer) Pack(ctx context.Context, res *query.Result, opts Options) (*Pack, error) {
	if opts.MaxPerFile <= 0 {
		opts.MaxPerFile = defaultMaxPerFile
	}
	if opts.MaxHandles <= 0 {
		opts.MaxHandles = defaultMaxHandles
	}

	pack, err := p.buildPack(ctx, res, opts)
	if err != nil {
		return nil, err
	}

	if opts.Plan && pack.Guidance.RecommendedAction == ActionRefineQuery {
		pack.Guidance.MaxAdditionalQueries = 1
	}

	if err := p.recordQueryFeedback(ctx, pack); err != nil {
		return nil, err
	}
	return pack, nil
}

func (p *Packer) buildPack(ctx context.Context, res *query.Result, opts Options) (*Pack, error) {
	rates, err := p.store.GlobHitRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: glob hit rates: %w", err)
	}
	recent, err := p.store.RecentlyExpanded(ctx, recentMemorySize)
	if err != nil {
		return nil, fmt.Errorf("evidence: recently expanded: %w", err)
	}
	sc := newScorer(rates, recent, opts.Glob)

	scored := make([]handle.Handle, len(res.Handles))
	copy(scored, res.Handles)
	for i := range scored {
		scored[i].Score = sc.score(scored[i])
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].FilePath != scored[j].FilePath {
			return scored[i].FilePath < scored[j].FilePath
		}
		return scored[i].Span.Start < scored[j].Span.Start
	})

	diversified := diversify(scored, opts.MaxPerFile, opts.MaxHandles)

	pack := &Pack{
		Handles:           diversified,
		RefHandles:        res.RefHandles,
		TotalMatches:      res.TotalMatches,
		Truncated:         res.Truncated || len(diversified) < len(scored),
		AutoExpanded:      res.AutoExpanded,
		ExpandedHandleIDs: res.ExpandedHandleIDs,
		ExpandNote:        res.ExpandNote,
	}
	for _, h := range diversified {
		pack.TotalTokens += h.TokenCount
	}
	pack.Guidance = synthesizeGuidance(diversified, opts.MaxHandles)
	return pack, nil
}

// diversify keeps at most maxPerFile handles per file and at most
// maxHandles total, preserving score order (spec §4.6).
func diversify(scored []handle.Handle, maxPerFile, maxHandles int) []handle.Handle {
	perFile := make(map[string]int)
	out := make([]handle.Handle, 0, maxHandles)
	for _, h := range scored {
		if len(out) >= maxHandles {
			break
		}
		if perFile[h.FilePath] >= maxPerFile {
			continue
		}
		perFile[h.FilePath]++
		out = append(out, h)
	}
	return out
}

// synthesizeGuidance implements spec §4.6's confidence rule: high if at
// least suggestedExpandCount handles clear confidenceThreshold and those
// handles span at least two distinct files; low otherwise.
func synthesizeGuidance(handles []handle.Handle, maxHandles int) Guidance {
	strongFiles := make(map[string]bool)
	strongCount := 0
	for _, h := range handles {
		if h.Score >= confidenceThreshold {
			strongCount++
			strongFiles[h.FilePath] = true
		}
	}

	suggestedExpand := strongCount
	if suggestedExpand > maxHandles {
		suggestedExpand = maxHandles
	}
	if suggestedExpand == 0 && len(handles) > 0 {
		suggestedExpand = 1
	}

	highConfidence := strongCount >= suggestedExpand && suggestedExpand > 0 && len(strongFiles) >= 2

	g := Guidance{
		SuggestedExpandCount: suggestedExpand,
	}
	if len(handles) == 0 {
		g.StopQuerying = false
		g.RecommendedAction = ActionRefineQuery
		g.Confidence = 0
		g.ConfidenceLabel = "low"
		g.NextStep = "no matches; broaden or rephrase the query"
		g.MaxAdditionalQueries = 2
		return g
	}

	if highConfidence {
		g.StopQuerying = true
		g.RecommendedAction = ActionExpandThenAnswer
		g.Confidence = 0.8
		g.ConfidenceLabel = "high"
		g.NextStep = fmt.Sprintf("expand the top %d handle(s) and answer from their content", suggestedExpand)
	} else {
		g.StopQuerying = false
		g.RecommendedAction = ActionRefineQuery
		g.Confidence = 0.3
		g.ConfidenceLabel = "low"
		g.MaxAdditionalQueries = 2
		g.NextStep = "results are thin or concentrated in one file; narrow the query to a specific symbol or file"
	}
	return g
}

// recordQueryFeedback appends one query_event (plus one
// query_event_handle row per returned handle) so future packs can learn
// which globs and node types tend to be useful (spec §3, I6).
func (p *Packer) recordQueryFeedback(ctx context.Context, pack *Pack) error {
	b, err := p.store.BeginBatch()
	if err != nil {
		return fmt.Errorf("evidence: begin feedback batch: %w", err)
	}
	now := time.Now().Unix()
	if err := b.RecordFeedback(store.FeedbackEvent{Kind: store.FeedbackQuery, TimeUnix: now}); err != nil {
		_ = b.Abort()
		return fmt.Errorf("evidence: record query feedback: %w", err)
	}
	for rank, h := range pack.Handles {
		if err := b.RecordFeedback(store.FeedbackEvent{
			Kind:     store.FeedbackQueryHandle,
			TimeUnix: now,
			NodeType: h.NodeType,
			HandleID: h.ID,
			Rank:     rank,
		}); err != nil {
			_ = b.Abort()
			return fmt.Errorf("evidence: record query feedback: %w", err)
		}
	}
	return b.Commit()
}

// RecordExpand appends an expand_event for id, recording whether the
// expansion was judged useful (true by default per spec §4.6; false if
// the caller later supersedes the handle in the same session).
func (p *Packer) RecordExpand(ctx context.Context, id string, nodeType handle.NodeType, glob string, useful bool) error {
	b, err := p.store.BeginBatch()
	if err != nil {
		return fmt.Errorf("evidence: begin expand batch: %w", err)
	}
	if err := b.RecordFeedback(store.FeedbackEvent{
		Kind:      store.FeedbackExpand,
		TimeUnix:  time.Now().Unix(),
		Glob:      glob,
		NodeType:  nodeType,
		HandleID:  id,
		WasUseful: useful,
	}); err != nil {
		_ = b.Abort()
		return fmt.Errorf("evidence: record expand feedback: %w", err)
	}
	return b.Commit()
}
