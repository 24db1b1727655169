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

// Package main implements the canopy CLI: a local-mode front end for the
// indexing pipeline and query engine, and, via --mcp, a per-agent stdio
// tool server (spec.md §2).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/canopy-dev/canopy/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	jsonOutput bool
	debug      bool
	mcpMode    bool
	repoRoot   string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:     "canopy",
	Short:   "Handle-first code retrieval for LLM agents",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
		ui.InitColors(noColor || jsonOutput)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if mcpMode {
			return runMCP(cmd.Context())
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("canopy version %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "root", ".", "Repository root (defaults to the current directory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVar(&mcpMode, "mcp", false, "Start as a per-agent stdio tool server instead of running a subcommand")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(hookCmd)
}

func initLogging() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
