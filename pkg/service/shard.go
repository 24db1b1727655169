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
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/indexing"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/store"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

// RepoShard owns one repo's on-disk store and its position in the
// Unindexed -> Indexing -> Ready (parallel Error) state machine (spec
// §4.9). A reindex writes straight into the shard's live store, batch by
// batch; there is no separate generation store and no pointer swap, so a
// query that runs during a reindex sees the batches committed so far.
// Queries take the RWMutex for reading; reindex takes it for writing only
// to update status, generation and commit_sha when the run ends.
type RepoShard struct {
	mu sync.RWMutex

	id     string
	name   string
	path   string // absolute filesystem path to the repo's VCS root
	dbPath string // absolute path to this shard's index.db

	status     Status
	generation uint64
	commitSHA  string
	lastErr    string

	st      *store.Store
	engine  *query.Engine
	packer  *evidence.Packer
	symbols *symbols.Cache

	log *slog.Logger
}

// newShard opens (or creates) the shard's store at dbPath and starts in
// StatusUnindexed; the caller triggers the first reindex explicitly.
func newShard(id, name, repoPath, dbPath string, log *slog.Logger) (*RepoShard, error) {
	st, err := store.Open(dbPath, store.Options{Log: log})
	if err != nil {
		return nil, fmt.Errorf("service: open shard store %s: %w", id, err)
	}
	sc := symbols.New()
	return &RepoShard{
		id: id, name: name, path: repoPath, dbPath: dbPath,
		status: StatusUnindexed,
		st:     st, engine: query.New(st, log), packer: evidence.New(st),
		symbols: sc, log: log,
	}, nil
}

// snapshot returns the fields needed to answer status/list_repos without
// holding the lock across a JSON encode.
func (sh *RepoShard) snapshot() ShardStatus {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return ShardStatus{
		RepoID: sh.id, Name: sh.name, Path: sh.path,
		Status: sh.status, Generation: sh.generation,
		CommitSHA: sh.commitSHA, Error: sh.lastErr,
	}
}

// beginIndexing transitions Unindexed/Ready/Error -> Indexing, returning
// false if a reindex is already in flight (the caller is expected to have
// already deduplicated via singleflight, so this is a defensive check).
func (sh *RepoShard) beginIndexing() bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.status == StatusIndexing {
		return false
	}
	sh.status = StatusIndexing
	return true
}

// reindex runs a full Pipeline pass against the shard's repo path and
// promotes generation/commit_sha atomically on success, or transitions to
// StatusError on failure (re-enterable via another reindex call).
func (sh *RepoShard) reindex(ctx context.Context) (uint64, error) {
	if !sh.beginIndexing() {
		sh.mu.RLock()
		gen := sh.generation
		sh.mu.RUnlock()
		return gen, nil
	}

	sh.log.Info("service.reindex.begin", "repo_id", sh.id)
	pipe := indexing.New(indexing.Config{Root: sh.path, TTL: 24 * time.Hour}, sh.st, sh.symbols, sh.log)
	_, runErr := pipe.Run(ctx)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if runErr != nil {
		sh.status = StatusError
		sh.lastErr = runErr.Error()
		sh.log.Error("service.reindex.error", "repo_id", sh.id, "error", runErr)
		return sh.generation, runErr
	}

	sha, shaErr := headCommitSHA(ctx, sh.path)
	if shaErr == nil {
		sh.commitSHA = sha
	}
	sh.generation++
	sh.status = StatusReady
	sh.lastErr = ""
	sh.log.Info("service.reindex.complete", "repo_id", sh.id, "generation", sh.generation, "commit_sha", sh.commitSHA)
	return sh.generation, nil
}

// query executes params against the shard's store and stamps every
// returned handle with source=service, commit_sha, and generation (spec
// §4.9). It holds the RWMutex for shared (read) access only.
func (sh *RepoShard) query(ctx context.Context, params query.ParamQuery) (*QueryResponse, error) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	node, limit, err := query.Compile(params)
	if err != nil {
		return nil, err
	}
	res, err := sh.engine.Execute(ctx, node, limit, params.ExpandBudget)
	if err != nil {
		return nil, err
	}
	pack, err := sh.packer.Pack(ctx, res, evidence.Options{Glob: params.Glob, Plan: params.Plan})
	if err != nil {
		return nil, err
	}
	for i := range pack.Handles {
		pack.Handles[i].Source = handle.SourceService
		pack.Handles[i].CommitSHA = sh.commitSHA
		pack.Handles[i].Generation = sh.generation
	}
	return &QueryResponse{Pack: pack, Generation: sh.generation, CommitSHA: sh.commitSHA}, nil
}

// expand hydrates content for a set of handle ids, refusing the whole
// call with ErrStaleGenerationCode if any ref names a generation older
// than the shard's current one (spec §4.9).
func (sh *RepoShard) expand(ctx context.Context, refs []ExpandHandleRef) (*ExpandResponse, error) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for _, r := range refs {
		if r.Generation != 0 && r.Generation < sh.generation {
			return nil, &ErrorEnvelope{
				Code:    ErrStaleGenerationCode,
				Message: fmt.Sprintf("handle %s was issued at generation %d, shard is now at %d", r.ID, r.Generation, sh.generation),
				Hint:    "reindex and re-query before expanding",
			}
		}
	}

	out := make([]ExpandedContent, 0, len(refs))
	for _, r := range refs {
		content, err := sh.st.GetContent(ctx, r.ID)
		if err == store.ErrNotFound {
			return nil, &ErrorEnvelope{Code: ErrNotFoundCode, Message: fmt.Sprintf("handle %s not found", r.ID)}
		}
		if err != nil {
			return nil, &ErrorEnvelope{Code: ErrInternalCode, Message: err.Error()}
		}
		out = append(out, ExpandedContent{HandleID: r.ID, Content: content})
		_ = sh.packer.RecordExpand(ctx, r.ID, "", "", true)
	}
	return &ExpandResponse{Contents: out}, nil
}

func (sh *RepoShard) close() error {
	return sh.st.Close()
}

// headCommitSHA shells out to `git rev-parse HEAD`, the same pattern
// pkg/indexing's dirty-detection helpers use for git plumbing.
func headCommitSHA(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// isVCSRoot reports whether path contains a .git directory, the
// add_repo precondition spec §4.9 requires.
func isVCSRoot(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info != nil
}
