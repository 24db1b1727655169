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

package runtime

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/indexing"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

// Auto composes Local and Remote per spec §4.8's five-step merge: query
// the service, detect locally dirty files via VCS status, reindex and
// re-query just that dirty subset locally, then drop any service handle
// whose file is dirty and union in the fresh local ones.
type Auto struct {
	local       *Local
	remote      *Remote
	repoRoot    string
	pipelineCfg indexing.Config
	scratchSym  *symbols.Cache
	log         *slog.Logger
}

// NewAuto builds an Auto engine. repoRoot is the working tree the dirty
// set is computed against; local must already be indexed against a store
// rooted at repoRoot (typically a scratch/overlay store the caller
// maintains just for auto mode).
func NewAuto(local *Local, remote *Remote, repoRoot string, log *slog.Logger) *Auto {
	if log == nil {
		log = slog.Default()
	}
	return &Auto{
		local: local, remote: remote, repoRoot: repoRoot, log: log,
		pipelineCfg: indexing.Config{Root: repoRoot, TTL: 24 * time.Hour},
		scratchSym:  symbols.New(),
	}
}

type queryOutcome struct {
	pack *evidence.Pack
	err  error
}

// Query runs the five-step auto algorithm. A service failure (down,
// timeout) degrades gracefully to local-only, per spec §5's "client
// request failure... yields an empty service result" rule.
func (a *Auto) Query(ctx context.Context, params query.ParamQuery) (*evidence.Pack, error) {
	serviceCh := make(chan queryOutcome, 1)
	go func() {
		pack, err := a.remote.Query(ctx, params)
		serviceCh <- queryOutcome{pack: pack, err: err}
	}()

	dirty, dirtyErr := indexing.DirtyFiles(ctx, a.repoRoot)
	if dirtyErr != nil {
		a.log.Warn("runtime.auto.dirty_detect.error", "error", dirtyErr)
		dirty = map[string]bool{}
	}

	if len(dirty) > 0 {
		includeGlobs := make([]string, 0, len(dirty))
		for path := range dirty {
			includeGlobs = append(includeGlobs, path)
		}
		cfg := a.pipelineCfg
		cfg.Discovery.IncludeGlobs = includeGlobs
		pipe := indexing.New(cfg, a.local.store, a.scratchSym, a.log)
		if _, err := pipe.Run(ctx); err != nil {
			a.log.Warn("runtime.auto.local_reindex.error", "error", err)
		}
	}

	localPack, localErr := a.local.Query(ctx, params)
	if localErr != nil {
		return nil, localErr
	}
	if len(dirty) > 0 {
		localPack.Handles = filterToDirty(localPack.Handles, dirty)
	} else {
		localPack.Handles = nil
	}

	outcome := <-serviceCh
	var servicePack *evidence.Pack
	if outcome.err != nil {
		a.log.Warn("runtime.auto.remote_query.degraded", "error", outcome.err)
		servicePack = &evidence.Pack{}
	} else {
		servicePack = outcome.pack
	}

	merged := mergeHandles(servicePack.Handles, localPack.Handles, dirty)
	limit := len(merged)
	if params.Limit > 0 {
		limit = params.Limit
	} else if limit > query.DefaultResultLimit() {
		limit = query.DefaultResultLimit()
	}
	truncated := servicePack.Truncated || localPack.Truncated
	if len(merged) > limit {
		merged = merged[:limit]
		truncated = true
	}

	totalTokens := 0
	for _, h := range merged {
		totalTokens += h.TokenCount
	}

	return &evidence.Pack{
		Handles:      merged,
		RefHandles:   append(append([]handle.RefHandle{}, servicePack.RefHandles...), localPack.RefHandles...),
		TotalTokens:  totalTokens,
		TotalMatches: servicePack.TotalMatches + localPack.TotalMatches,
		Truncated:    truncated,
		Guidance:     servicePack.Guidance,
	}, nil
}

// Expand tries the local overlay first for each id (fresher content for
// anything indexed during the last Query's dirty-subset reindex) and
// falls back to the service for ids the local store doesn't have.
func (a *Auto) Expand(ctx context.Context, ids []string) ([]ExpandedContent, error) {
	var remaining []string
	out := make([]ExpandedContent, 0, len(ids))
	for _, id := range ids {
		content, err := a.local.store.GetContent(ctx, id)
		if err != nil {
			remaining = append(remaining, id)
			continue
		}
		out = append(out, ExpandedContent{HandleID: id, Content: content})
	}
	if len(remaining) == 0 {
		return out, nil
	}
	fromRemote, err := a.remote.Expand(ctx, remaining)
	if err != nil {
		if len(out) > 0 {
			a.log.Warn("runtime.auto.expand.remote_fallback_failed", "error", err)
			return out, nil
		}
		return nil, err
	}
	return append(out, fromRemote...), nil
}

// filterToDirty keeps only handles whose file is in the dirty set, the
// "execute over the dirty subset" step of spec §4.8.
func filterToDirty(handles []handle.Handle, dirty map[string]bool) []handle.Handle {
	var out []handle.Handle
	for _, h := range handles {
		if dirty[h.FilePath] {
			h.Source = handle.SourceLocal
			out = append(out, h)
		}
	}
	return out
}

// mergeHandles drops every service handle whose file_path is dirty,
// unions with the local handles, and re-sorts by (score desc, file path
// asc, span asc) per spec §4.8.
func mergeHandles(serviceHandles, localHandles []handle.Handle, dirty map[string]bool) []handle.Handle {
	merged := make([]handle.Handle, 0, len(serviceHandles)+len(localHandles))
	for _, h := range serviceHandles {
		if dirty[h.FilePath] {
			continue
		}
		merged = append(merged, h)
	}
	merged = append(merged, localHandles...)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].FilePath != merged[j].FilePath {
			return merged[i].FilePath < merged[j].FilePath
		}
		return merged[i].Span.Start < merged[j].Span.Start
	})
	return merged
}
