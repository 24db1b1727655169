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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/indexing"
	"github.com/canopy-dev/canopy/pkg/predictor"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/store"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

// Local drives the query engine and evidence packer directly against an
// already-indexed on-disk store, with no network round trip.
type Local struct {
	store  *store.Store
	engine *query.Engine
	packer *evidence.Packer
	log    *slog.Logger

	// repoRoot, pipelineCfg, and scratchSym are set by WithPredictorScoping
	// and drive spec §4.7's large-repo first-index scoping. repoRoot == ""
	// means scoping is disabled (the zero value NewLocal returns, used by
	// callers that index out-of-band and never need it).
	repoRoot    string
	pipelineCfg indexing.Config
	scratchSym  *symbols.Cache
}

// NewLocal builds a Local engine over an already-open Store.
func NewLocal(st *store.Store, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{store: st, engine: query.New(st, log), packer: evidence.New(st), log: log}
}

// WithPredictorScoping enables spec §4.7's predictor: before the very
// first index of repoRoot, Query scopes the initial indexing batch to
// the globs the query's keywords predict, instead of indexing the whole
// tree up front. Callers that index out-of-band (e.g. a `canopy index`
// run before any query) don't need this and can leave it unset.
func (l *Local) WithPredictorScoping(repoRoot string) *Local {
	l.repoRoot = repoRoot
	l.pipelineCfg = indexing.Config{Root: repoRoot, TTL: 24 * time.Hour}
	l.scratchSym = symbols.New()
	return l
}

// scopeFirstIndexIfNeeded implements spec §4.7: before the store's very
// first index of a repo with more than predictor.LargeRepoFileCount
// files, it scopes that first batch to the globs the query's keywords
// predict (falling back to predictor.DefaultGlobs on no match), rather
// than indexing the whole tree before the agent's first query can
// return anything.
func (l *Local) scopeFirstIndexIfNeeded(ctx context.Context, params query.ParamQuery) error {
	if l.repoRoot == "" {
		return nil
	}
	stats, err := l.store.Stat(ctx)
	if err != nil {
		return fmt.Errorf("runtime: local predictor stat: %w", err)
	}
	if stats.Files > 0 {
		return nil // already indexed at least once
	}

	paths, _, err := indexing.Discover(indexing.DiscoveryConfig{Root: l.repoRoot})
	if err != nil {
		return fmt.Errorf("runtime: local predictor discover: %w", err)
	}
	if !predictor.ShouldScope(len(paths)) {
		return nil // small enough to just index everything below
	}

	queryText := strings.Join(append([]string{params.Pattern, params.Symbol, params.Section}, params.Patterns...), " ")
	globs := predictor.Predict(queryText)
	l.log.Info("runtime.local.predictor_scoped_index", "files", len(paths), "globs", globs)

	cfg := l.pipelineCfg
	cfg.Discovery.IncludeGlobs = globs
	pipe := indexing.New(cfg, l.store, l.scratchSym, l.log)
	if _, err := pipe.Run(ctx); err != nil {
		return fmt.Errorf("runtime: local predictor scoped index: %w", err)
	}
	return nil
}

// Query compiles params, executes them, and packs the result, stamping
// every handle source=local.
func (l *Local) Query(ctx context.Context, params query.ParamQuery) (*evidence.Pack, error) {
	if err := l.scopeFirstIndexIfNeeded(ctx, params); err != nil {
		return nil, err
	}
	node, limit, err := query.Compile(params)
	if err != nil {
		return nil, err
	}
	res, err := l.engine.Execute(ctx, node, limit, params.ExpandBudget)
	if err != nil {
		return nil, err
	}
	pack, err := l.packer.Pack(ctx, res, evidence.Options{Glob: params.Glob, Plan: params.Plan})
	if err != nil {
		return nil, err
	}
	for i := range pack.Handles {
		pack.Handles[i].Source = handle.SourceLocal
	}
	return pack, nil
}

// Expand hydrates content for each id and records an expand_event with
// useful set to true.
func (l *Local) Expand(ctx context.Context, ids []string) ([]ExpandedContent, error) {
	out := make([]ExpandedContent, 0, len(ids))
	meta, err := l.store.BatchLoadMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("runtime: local expand metadata: %w", err)
	}
	for _, id := range ids {
		content, err := l.store.GetContent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("runtime: local expand %s: %w", id, err)
		}
		nodeType := meta[id].NodeType
		if err := l.packer.RecordExpand(ctx, id, nodeType, "", true); err != nil {
			return nil, fmt.Errorf("runtime: local record expand %s: %w", id, err)
		}
		out = append(out, ExpandedContent{HandleID: id, Content: content})
	}
	return out, nil
}
