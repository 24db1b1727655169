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

package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-dev/canopy/pkg/parser"
	"github.com/canopy-dev/canopy/pkg/store"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

// queueCapacity bounds the work channel between discovery and the parse
// worker pool (spec §6): workers never race ahead of what a single DB
// writer can absorb by more than this many files.
const queueCapacity = 64

// Config controls one Pipeline run.
type Config struct {
	Root         string
	ParseWorkers int // 0 selects runtime.NumCPU()-derived default
	TTL          time.Duration
	Discovery    DiscoveryConfig
}

// Result summarizes one indexing run, the JSON a `canopy index` command
// prints (spec §4.1, modeled on the teacher's IngestionResult).
type Result struct {
	RunID             string
	FilesDiscovered   int
	FilesIndexed      int
	FilesSkipped      int
	FilesDeleted      int
	NodesExtracted    int
	RefsExtracted     int
	ParseErrors       int
	CodeTextTruncated int
	SkipReasons       map[string]int
	Duration          time.Duration
	Cancelled         bool
}

// Pipeline wires discovery, the skip policy, the parser dispatcher, the
// store, and the symbol cache into one incremental indexing run.
type Pipeline struct {
	cfg Config

	store      *store.Store
	symbolsCh  *symbols.Cache
	dispatcher *parser.Dispatcher
	log        *slog.Logger

	cancelled atomic.Bool
}

// New builds a Pipeline over an already-open Store and Cache.
func New(cfg Config, st *store.Store, sc *symbols.Cache, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{cfg: cfg, store: st, symbolsCh: sc, dispatcher: parser.NewDispatcher(log), log: log}
}

// Cancel requests cooperative shutdown; in-flight parse workers finish
// their current file and the writer commits whatever has accumulated so
// far, matching the indexing invariant that a cancelled run never leaves
// the store in a half-written state for a single file (spec §6, I5).
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

// Run discovers files under cfg.Root, applies the skip policy, parses
// changed files across a bounded worker pool, and commits results to the
// store in batches capped at store.MaxBatchFiles.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := fmt.Sprintf("run-%d", start.UnixNano())
	p.dispatcher.ResetTruncatedCount()
	p.log.Info("indexing.run.start", "run_id", runID, "root", p.absRoot())

	discoCfg := p.cfg.Discovery
	discoCfg.Root = p.absRoot()
	discovered, skipReasons, err := Discover(discoCfg)
	if err != nil {
		return nil, fmt.Errorf("indexing: discover: %w", err)
	}
	p.log.Info("indexing.discover.complete", "run_id", runID, "file_count", len(discovered))

	workers := p.parseWorkers()
	jobs := make(chan string, queueCapacity)
	type parsed struct {
		path   string
		result *parser.Result
		rec    store.FileRecord
		skip   bool
		err    error
	}
	results := make(chan parsed, queueCapacity)

	var wg sync.WaitGroup
	var errCount int32
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				if p.cancelled.Load() {
					continue
				}
				select {
				case <-ctx.Done():
					continue
				default:
				}

				full := filepath.Join(p.absRoot(), rel)
				// Stat before Read: the stored mtime must describe a file
				// state no newer than the bytes we hash below, or a
				// concurrent write between the two calls would let a
				// later run's fast mtime-skip trust a (mtime, sha) pair
				// that never actually coexisted (spec §4.1 TOCTOU note).
				info, statErr := os.Stat(full)
				if statErr != nil {
					atomic.AddInt32(&errCount, 1)
					results <- parsed{path: rel, err: statErr}
					continue
				}
				content, readErr := os.ReadFile(full)
				if readErr != nil {
					atomic.AddInt32(&errCount, 1)
					results <- parsed{path: rel, err: readErr}
					continue
				}
				sha := HashContent(content)

				prior, lookupErr := p.store.FileRecord(ctx, rel)
				found := lookupErr == nil
				decision := EvaluateSkip(prior, found, info, sha, p.ttl(), time.Now())
				if decision == Skip {
					results <- parsed{path: rel, skip: true}
					continue
				}

				pr, parseErr := p.dispatcher.ParseFile(ctx, rel, content)
				if parseErr != nil {
					atomic.AddInt32(&errCount, 1)
					results <- parsed{path: rel, err: parseErr}
					continue
				}
				results <- parsed{
					path:   rel,
					result: pr,
					rec: store.FileRecord{
						Path: rel, MTimeUnix: info.ModTime().Unix(), Size: info.Size(),
						ContentSHA: sha, IndexedAtUnix: time.Now().Unix(),
					},
				}
			}
		}()
	}

	go func() {
		for _, rel := range discovered {
			jobs <- rel
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	res := &Result{RunID: runID, FilesDiscovered: len(discovered), SkipReasons: skipReasons}

	batch, err := p.store.BeginBatch()
	if err != nil {
		return nil, fmt.Errorf("indexing: begin batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = batch.Abort()
		}
	}()

	for pr := range results {
		if pr.skip {
			res.FilesSkipped++
			continue
		}
		if pr.err != nil {
			res.ParseErrors++
			p.log.Warn("indexing.parse_file.error", "run_id", runID, "path", pr.path, "error", pr.err)
			continue
		}

		if batch.FileCount() >= store.MaxBatchFiles {
			if err := batch.Commit(); err != nil {
				return nil, fmt.Errorf("indexing: commit batch: %w", err)
			}
			committed = true
			batch, err = p.store.BeginBatch()
			if err != nil {
				return nil, fmt.Errorf("indexing: begin batch: %w", err)
			}
			committed = false
		}

		if err := batch.DeleteFile(pr.path); err != nil {
			return nil, fmt.Errorf("indexing: delete file %s: %w", pr.path, err)
		}
		if err := batch.UpsertFile(pr.rec); err != nil {
			return nil, fmt.Errorf("indexing: upsert file %s: %w", pr.path, err)
		}
		if err := batch.InsertNodesFor(pr.path, pr.result.Nodes, pr.result.Refs); err != nil {
			return nil, fmt.Errorf("indexing: insert nodes %s: %w", pr.path, err)
		}

		locs := make([]symbols.Location, 0, len(pr.result.Nodes))
		for _, n := range pr.result.Nodes {
			if n.Name == "" {
				continue
			}
			locs = append(locs, symbols.Location{
				HandleID: n.HandleID, FilePath: n.FilePath, Name: n.Name,
				NodeType: n.NodeType, Span: n.Span, Lines: n.Lines,
			})
		}
		p.symbolsCh.ReplaceFile(pr.path, locs)

		res.FilesIndexed++
		res.NodesExtracted += len(pr.result.Nodes)
		res.RefsExtracted += len(pr.result.Refs)
	}

	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("indexing: commit final batch: %w", err)
	}
	committed = true

	res.ParseErrors += int(atomic.LoadInt32(&errCount))
	res.CodeTextTruncated = p.dispatcher.GetTruncatedCount()
	res.Cancelled = p.cancelled.Load()
	res.Duration = time.Since(start)

	p.log.Info("indexing.run.complete", "run_id", runID,
		"files_indexed", res.FilesIndexed, "files_skipped", res.FilesSkipped,
		"parse_errors", res.ParseErrors, "cancelled", res.Cancelled,
		"duration_ms", res.Duration.Milliseconds())

	return res, nil
}

func (p *Pipeline) absRoot() string {
	return p.cfg.Root
}

func (p *Pipeline) parseWorkers() int {
	if p.cfg.ParseWorkers > 0 {
		return p.cfg.ParseWorkers
	}
	return 4
}

func (p *Pipeline) ttl() time.Duration {
	return p.cfg.TTL
}
