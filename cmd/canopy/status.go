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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/errors"
	"github.com/canopy-dev/canopy/internal/output"
	"github.com/canopy-dev/canopy/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report index size and freshness for the repo under --root",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := slog.Default()

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

		stats, err := st.Stat(cmd.Context())
		if err != nil {
			errors.FatalError(errors.NewDatabaseError(
				"Cannot read index stats",
				err.Error(),
				"Run 'canopy reset --yes' and re-index if the database is corrupted",
				err,
			), jsonOutput)
		}

		if jsonOutput {
			return output.JSON(stats)
		}
		ui.Header("Canopy Repo Status")
		cmd.Printf("%s %s\n", ui.Label("Files:"), ui.CountText(stats.Files))
		cmd.Printf("%s %s\n", ui.Label("Nodes:"), ui.CountText(stats.Nodes))
		cmd.Printf("%s %s\n", ui.Label("Refs:"), ui.CountText(stats.Refs))
		cmd.Printf("%s %s\n", ui.Label("Feedback events:"), ui.CountText(stats.FeedbackEvents))
		cmd.Printf("%s %s\n", ui.Label("Size:"), ui.DimText(fmt.Sprintf("%d bytes", stats.SizeBytes)))
		return nil
	},
}
