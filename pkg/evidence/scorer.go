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

// Package evidence turns a query.Result into a compact evidence pack: no
// code snippets, a diversified and reranked handle list, and explicit
// guidance on what an agent should do next (spec §4.6).
package evidence

import (
	"strings"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/store"
)

// nodeTypePrior ranks node types by how much signal they usually carry
// per token spent reading them: a definition is worth more than a
// chunked fallback guess.
var nodeTypePrior = map[handle.NodeType]float64{
	handle.NodeFunction:  1.0,
	handle.NodeClass:     1.0,
	handle.NodeStruct:    1.0,
	handle.NodeMethod:    0.9,
	handle.NodeSection:   0.7,
	handle.NodeCodeBlock: 0.6,
	handle.NodeParagraph: 0.4,
	handle.NodeChunk:     0.3,
}

// recentPenalty discounts a handle that was in the short-memory ring of
// recently-expanded ids (spec §4.6): the agent has already seen its
// content, so it contributes less to "what should I look at next".
const recentPenalty = 0.5

// scoreWeights combine the three terms into one ranking score. Lexical
// carries the most weight since it is the direct signal the caller's
// query expressed; node type and feedback are priors that nudge ties.
const (
	lexicalWeight = 0.6
	typeWeight    = 0.25
	feedbackWeight = 0.15
)

// scorer computes the combined score for one handle.
type scorer struct {
	globRates map[string]map[string]store.GlobHitRate // glob -> node_type -> rate
	recent    map[string]bool
	queryGlob string
}

func newScorer(rates []store.GlobHitRate, recent []string, queryGlob string) *scorer {
	byGlob := make(map[string]map[string]store.GlobHitRate, len(rates))
	for _, r := range rates {
		m, ok := byGlob[r.Glob]
		if !ok {
			m = make(map[string]store.GlobHitRate)
			byGlob[r.Glob] = m
		}
		m[r.NodeType] = r
	}
	recentSet := make(map[string]bool, len(recent))
	for _, id := range recent {
		recentSet[id] = true
	}
	return &scorer{globRates: byGlob, recent: recentSet, queryGlob: queryGlob}
}

// score combines lexical (already on h.Score, higher is better and
// roughly 0..a few units), a node-type prior (0..1), and a feedback
// prior (0..1) derived from how often handles of this (node_type, glob)
// pair were judged useful after being expanded.
func (s *scorer) score(h handle.Handle) float64 {
	lexical := h.Score
	typePrior := nodeTypePrior[h.NodeType]
	if typePrior == 0 {
		typePrior = 0.5
	}
	feedback := s.feedbackPrior(h)

	total := lexicalWeight*lexical + typeWeight*typePrior + feedbackWeight*feedback
	if s.recent[h.ID] {
		total *= recentPenalty
	}
	return total
}

func (s *scorer) feedbackPrior(h handle.Handle) float64 {
	best := 0.0
	for glob, byType := range s.globRates {
		if !globMatchesFile(glob, h.FilePath) {
			continue
		}
		if rate, ok := byType[string(h.NodeType)]; ok {
			if r := rate.Rate(); r > best {
				best = r
			}
		}
	}
	return best
}

// globMatchesFile reports whether file sits under the glob's directory
// prefix. Full doublestar matching is unnecessary here: feedback globs
// are always directory-shaped ("**/auth/**"), so a simple substring
// check on the stripped prefix is sufficient and avoids a dependency on
// the exact glob the predictor produced.
func globMatchesFile(glob, file string) bool {
	prefix := strings.Trim(glob, "*/")
	if prefix == "" {
		return true
	}
	return strings.Contains(file, prefix)
}
