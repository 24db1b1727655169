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

package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/config"
	"github.com/canopy-dev/canopy/internal/errors"
	"github.com/canopy-dev/canopy/internal/output"
	"github.com/canopy-dev/canopy/internal/ui"
	"github.com/canopy-dev/canopy/pkg/indexing"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

var indexParseWorkers int

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the repo under --root into .canopy/index.db",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := slog.Default()

		cfg, err := config.Load(repoRoot)
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot load Canopy configuration",
				err.Error(),
				"Run 'canopy init' to create a new configuration",
				err,
			), jsonOutput)
		}

		st, err := bootstrap.OpenRepo(repoRoot, log)
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Repo is not initialized",
				err.Error(),
				"Run 'canopy init' first",
				err,
			), jsonOutput)
		}
		defer st.Close()

		pipeline := indexing.New(indexing.Config{
			Root:         repoRoot,
			ParseWorkers: indexParseWorkers,
			TTL:          cfg.Core.TTL,
			Discovery: indexing.DiscoveryConfig{
				Root:        repoRoot,
				IgnoreGlobs: cfg.Ignore.Patterns,
			},
		}, st, symbols.New(), log)

		spinner := newIndexingSpinner("indexing " + repoRoot)
		if spinner != nil {
			ticker := time.NewTicker(100 * time.Millisecond)
			done := make(chan struct{})
			go func() {
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						_ = spinner.Add(1)
					case <-done:
						return
					}
				}
			}()
			defer func() { close(done); _ = spinner.Finish() }()
		}
		result, err := pipeline.Run(cmd.Context())
		if err != nil {
			errors.FatalError(errors.NewDatabaseError(
				"Indexing failed",
				err.Error(),
				"Re-run 'canopy index'; batches committed before the failure are kept and their files will be skipped",
				err,
			), jsonOutput)
		}

		if jsonOutput {
			return output.JSON(result)
		}
		ui.Successf("Indexed %d files (%d nodes, %d refs) in %s",
			result.FilesIndexed, result.NodesExtracted, result.RefsExtracted, result.Duration)
		if result.FilesSkipped > 0 {
			ui.Infof("Skipped %d unchanged file(s)", result.FilesSkipped)
		}
		if result.FilesDeleted > 0 {
			ui.Warningf("Removed %d deleted file(s) from the index", result.FilesDeleted)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().IntVar(&indexParseWorkers, "parse-workers", 0, "Parallel parse workers (0 selects a default based on GOMAXPROCS)")
}
