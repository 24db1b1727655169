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
	"net/http"

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/config"
	"github.com/canopy-dev/canopy/internal/contract"
	"github.com/canopy-dev/canopy/internal/errors"
	"github.com/canopy-dev/canopy/internal/output"
	"github.com/canopy-dev/canopy/pkg/runtime"
)

var queryParams contract.QueryParams
var queryServiceAddr string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a handle query against the indexed repo",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := slog.Default()

		if vr := contract.ValidateQueryParams(queryParams); !vr.OK {
			errors.FatalError(errors.NewInputError(
				"Invalid query parameters",
				vr.Message,
				"See 'canopy query --help' for the supported flags",
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

		cfg, err := config.Load(repoRoot)
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot load Canopy configuration",
				err.Error(),
				"Run 'canopy init' to create a new configuration",
				err,
			), jsonOutput)
		}
		if queryParams.Limit <= 0 {
			queryParams.Limit = cfg.Core.DefaultResultLimit
		}

		var engine runtime.Engine
		if queryServiceAddr != "" {
			local := runtime.NewLocal(st, log).WithPredictorScoping(repoRoot)
			remote := runtime.NewRemote(queryServiceAddr, repoRoot, http.DefaultClient, log)
			engine = runtime.NewAuto(local, remote, repoRoot, log)
		} else {
			engine = runtime.NewLocal(st, log).WithPredictorScoping(repoRoot)
		}

		pack, err := engine.Query(cmd.Context(), queryParams)
		if err != nil {
			errors.FatalError(errors.NewDatabaseError(
				"Query failed",
				err.Error(),
				"Re-run 'canopy query' after checking the index is current",
				err,
			), jsonOutput)
		}

		if jsonOutput {
			return output.JSON(pack)
		}
		for _, h := range pack.Handles {
			cmd.Printf("%s  %s:%d-%d  score=%.3f  %s\n", h.ID, h.FilePath, h.Span.Start, h.Span.End, h.Score, h.Name)
		}
		return nil
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryParams.Pattern, "pattern", "", "Regex pattern to search for")
	f.StringVar(&queryParams.Symbol, "symbol", "", "Exact symbol name")
	f.StringVar(&queryParams.Section, "section", "", "Markdown/doc section heading")
	f.StringVar(&queryParams.Parent, "parent", "", "Symbol name whose children to return")
	f.StringVar(&queryParams.Child, "child", "", "Child name to select among --parent's children (requires --parent)")
	f.StringVar(&queryParams.FilePath, "file-path", "", "Exact file path")
	f.StringVar(&queryParams.Kind, "kind", "", "definition | reference | any")
	f.StringVar(&queryParams.Glob, "glob", "", "Glob restricting matched files")
	f.StringVar(&queryParams.Match, "match", "", "any | all, how multiple patterns combine (this command sets at most one, via --pattern)")
	f.IntVar(&queryParams.Limit, "limit", 0, "Max handles to return (0 selects the configured default)")
	f.BoolVar(&queryParams.Plan, "plan", false, "Bias guidance toward a single best next query instead of broad coverage")
	f.IntVar(&queryParams.ExpandBudget, "expand-budget", 0, "Auto-populate handle content when the result's total tokens fit this budget (0 disables)")
	f.StringVar(&queryServiceAddr, "service", "", "canopy-serve base URL; when set, merges remote results with local dirty-file reindexing")
}
