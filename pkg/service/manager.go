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

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/canopy-dev/canopy/pkg/query"
)

// Manager hosts every repo shard this process serves (spec §4.9). It is
// the thing cmd/canopy-serve's HTTP handlers call into.
type Manager struct {
	dataDir string
	log     *slog.Logger

	mu     sync.RWMutex
	shards map[string]*RepoShard
	byPath map[string]string // absolute repo path -> repo id, for add_repo idempotency

	reindexGroup singleflight.Group

	queries       prometheus.Counter
	expands       prometheus.Counter
	reindexes     prometheus.Counter
	evidencePacks prometheus.Counter

	// Mirrors of the above for the metrics operation's plain-JSON snapshot
	// (spec §4.9); prometheus.Counter itself has no public Get().
	queriesCount       atomic.Uint64
	expandsCount       atomic.Uint64
	reindexesCount     atomic.Uint64
	evidencePacksCount atomic.Uint64
}

// NewManager builds a Manager that keeps each shard's index.db under
// dataDir/<repo_id>/index.db.
func NewManager(dataDir string, log *slog.Logger, reg prometheus.Registerer) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		dataDir: dataDir,
		log:     log,
		shards:  make(map[string]*RepoShard),
		byPath:  make(map[string]string),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_service_queries_total", Help: "Total query operations served.",
		}),
		expands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_service_expands_total", Help: "Total expand operations served.",
		}),
		reindexes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_service_reindexes_total", Help: "Total reindex operations started.",
		}),
		evidencePacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_service_evidence_packs_total", Help: "Total evidence packs synthesized.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queries, m.expands, m.reindexes, m.evidencePacks)
	}
	return m
}

// AddRepo registers path as a shard, requiring it to be a VCS root.
// Re-adding an already-known path returns the existing id (spec §4.9).
func (m *Manager) AddRepo(req AddRepoRequest) (*AddRepoResponse, error) {
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: err.Error()}
	}
	if !isVCSRoot(abs) {
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: fmt.Sprintf("%s is not a VCS root", abs), Hint: "add_repo requires a directory containing .git"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPath[abs]; ok {
		return &AddRepoResponse{RepoID: id, Name: m.shards[id].name}, nil
	}

	id := uuid.NewString()
	name := req.Name
	if name == "" {
		name = filepath.Base(abs)
	}
	dbDir := filepath.Join(m.dataDir, id)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: err.Error()}
	}
	sh, err := newShard(id, name, abs, filepath.Join(dbDir, "index.db"), m.log)
	if err != nil {
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: err.Error()}
	}
	m.shards[id] = sh
	m.byPath[abs] = id
	m.log.Info("service.add_repo", "repo_id", id, "path", abs)
	return &AddRepoResponse{RepoID: id, Name: name}, nil
}

func (m *Manager) shard(repoID string) (*RepoShard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sh, ok := m.shards[repoID]
	if !ok {
		return nil, &ErrorEnvelope{Code: ErrNotFoundCode, Message: fmt.Sprintf("repo %s not found", repoID)}
	}
	return sh, nil
}

// Reindex coalesces concurrent callers for the same repo onto one
// in-flight run (spec §4.9, I7); a caller that arrives mid-run observes
// already_indexing and the generation captured when the run started.
func (m *Manager) Reindex(ctx context.Context, repoID string) (*ReindexResponse, error) {
	sh, err := m.shard(repoID)
	if err != nil {
		return nil, err
	}

	sh.mu.RLock()
	alreadyRunning := sh.status == StatusIndexing
	priorGen := sh.generation
	sh.mu.RUnlock()
	if alreadyRunning {
		return &ReindexResponse{Generation: priorGen, Status: "already_indexing"}, nil
	}

	m.reindexes.Inc()
	m.reindexesCount.Add(1)
	genCh := m.reindexGroup.DoChan(repoID, func() (any, error) {
		gen, err := sh.reindex(ctx)
		return gen, err
	})

	select {
	case res := <-genCh:
		if res.Err != nil {
			return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: res.Err.Error()}
		}
		sh.mu.RLock()
		sha := sh.commitSHA
		sh.mu.RUnlock()
		return &ReindexResponse{Generation: res.Val.(uint64), Status: "indexing", CommitSHA: sha}, nil
	case <-ctx.Done():
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: ctx.Err().Error()}
	}
}

// Query runs req against the named shard.
func (m *Manager) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	sh, err := m.shard(req.Repo)
	if err != nil {
		return nil, err
	}
	m.queries.Inc()
	m.queriesCount.Add(1)
	res, err := sh.query(ctx, query.ParamQuery(req.QueryParams))
	if err != nil {
		return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: err.Error()}
	}
	m.evidencePacks.Inc()
	m.evidencePacksCount.Add(1)
	return res, nil
}

// Expand hydrates content for req's handle ids against the named shard.
func (m *Manager) Expand(ctx context.Context, req ExpandRequest) (*ExpandResponse, error) {
	sh, err := m.shard(req.Repo)
	if err != nil {
		return nil, err
	}
	m.expands.Inc()
	m.expandsCount.Add(1)
	return sh.expand(ctx, req.Handles)
}

// ListRepos returns every known shard's status snapshot.
func (m *Manager) ListRepos() []ShardStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ShardStatus, 0, len(m.shards))
	for _, sh := range m.shards {
		out = append(out, sh.snapshot())
	}
	return out
}

// Status returns one shard's status snapshot.
func (m *Manager) Status(repoID string) (*ShardStatus, error) {
	sh, err := m.shard(repoID)
	if err != nil {
		return nil, err
	}
	snap := sh.snapshot()
	return &snap, nil
}

// Metrics returns a point-in-time snapshot of the counters spec §4.9's
// metrics operation exposes.
func (m *Manager) Metrics() Metrics {
	return Metrics{
		Queries:       m.queriesCount.Load(),
		Expands:       m.expandsCount.Load(),
		Reindexes:     m.reindexesCount.Load(),
		EvidencePacks: m.evidencePacksCount.Load(),
	}
}

// Close closes every shard's store, used during graceful shutdown.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first error
	for _, sh := range m.shards {
		if err := sh.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
