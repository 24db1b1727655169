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

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/errors"
	"github.com/canopy-dev/canopy/internal/output"
	"github.com/canopy-dev/canopy/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .canopy/config.toml and an empty index for the current repo",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := bootstrap.InitRepo(repoRoot, slog.Default())
		if err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot initialize Canopy repo",
				err.Error(),
				"Check that the directory is writable",
				err,
			), jsonOutput)
		}
		if jsonOutput {
			return output.JSON(info)
		}
		if info.Created {
			ui.Successf("Created %s", info.DBPath)
		} else {
			ui.Infof("Repo already initialized at %s", info.DBPath)
		}
		return nil
	},
}
