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
	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/errors"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the .canopy directory, clearing all indexed data",
	Long: `Deletes .canopy/ under --root: the config and the on-disk index.

WARNING: This operation is destructive and cannot be undone. Run
'canopy init && canopy index' afterward to rebuild.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			errors.FatalError(errors.NewInputError(
				"Refusing to reset without confirmation",
				"reset deletes .canopy/ and all indexed data for this repo",
				"Re-run with --yes to confirm",
			), jsonOutput)
		}

		if err := bootstrap.Reset(repoRoot); err != nil {
			errors.FatalError(errors.NewDatabaseError(
				"Cannot reset repo",
				err.Error(),
				"Check file permissions under .canopy/",
				err,
			), jsonOutput)
		}

		cmd.Println("Reset complete. Run 'canopy init && canopy index' to rebuild.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "Confirm the reset (required)")
}
