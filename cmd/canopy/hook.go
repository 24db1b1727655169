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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/errors"
)

const postCommitHookContent = `#!/bin/sh
# canopy auto-index hook - reindexes the repo after each commit
# Installed by: canopy install-hook
# Remove with: canopy install-hook --remove

canopy index --root="%s" >/dev/null 2>&1 &
`

const hookMarker = "# canopy auto-index hook"

var (
	hookForce  bool
	hookRemove bool
)

var hookCmd = &cobra.Command{
	Use:   "install-hook",
	Short: "Install or remove a git post-commit hook that reindexes on commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		gitDir, err := findGitDir(repoRoot)
		if err != nil {
			errors.FatalError(errors.NewInputError(
				"Not a git repository",
				err.Error(),
				"Run this from inside a git working tree",
			), jsonOutput)
		}
		hookPath := filepath.Join(gitDir, "hooks", "post-commit")

		if hookRemove {
			if err := removeHook(hookPath); err != nil {
				errors.FatalError(errors.NewInputError("Cannot remove hook", err.Error(), "Remove it manually if needed"), jsonOutput)
			}
			cmd.Println("Git hook removed.")
			return nil
		}

		if err := installHook(hookPath, repoRoot, hookForce); err != nil {
			errors.FatalError(errors.NewInputError("Cannot install hook", err.Error(), "Pass --force to overwrite an existing hook"), jsonOutput)
		}
		cmd.Printf("Git hook installed: %s\n", hookPath)
		return nil
	},
}

func init() {
	hookCmd.Flags().BoolVar(&hookForce, "force", false, "Overwrite an existing hook")
	hookCmd.Flags().BoolVar(&hookRemove, "remove", false, "Remove the hook instead of installing")
}

// findGitDir walks up from root looking for .git, resolving worktree
// gitdir redirection files the same way git itself does.
func findGitDir(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() {
				return gitPath, nil
			}
			content, err := os.ReadFile(gitPath)
			if err != nil {
				return "", fmt.Errorf("cannot read .git file: %w", err)
			}
			var gitdir string
			if _, err := fmt.Sscanf(string(content), "gitdir: %s", &gitdir); err == nil {
				if filepath.IsAbs(gitdir) {
					return gitdir, nil
				}
				return filepath.Join(dir, gitdir), nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("not a git repository (or any parent directory): %s", root)
}

func installHook(hookPath, root string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return fmt.Errorf("cannot create hooks directory: %w", err)
	}

	if _, err := os.Stat(hookPath); err == nil {
		if !force {
			content, err := os.ReadFile(hookPath)
			if err == nil && containsHookMarker(string(content)) {
				return nil // already installed
			}
			return fmt.Errorf("hook already exists at %s (use --force to overwrite)", hookPath)
		}
	}

	contents := fmt.Sprintf(postCommitHookContent, root)
	return os.WriteFile(hookPath, []byte(contents), 0o755)
}

func removeHook(hookPath string) error {
	content, err := os.ReadFile(hookPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no hook found at %s", hookPath)
		}
		return fmt.Errorf("cannot read hook: %w", err)
	}
	if !containsHookMarker(string(content)) {
		return fmt.Errorf("hook at %s was not installed by canopy, remove it manually", hookPath)
	}
	return os.Remove(hookPath)
}

func containsHookMarker(content string) bool {
	return strings.Contains(content, hookMarker)
}
