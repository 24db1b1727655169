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

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/canopy-dev/canopy/internal/config"
	"github.com/canopy-dev/canopy/pkg/store"
)

// RepoInfo describes a scaffolded or opened repo.
type RepoInfo struct {
	Root    string
	DBPath  string
	Config  config.Config
	Created bool // true if InitRepo created config.toml this call
}

// dbPath returns the conventional store location under root's .canopy
// directory (spec.md §6's persisted layout).
func dbPath(root string) string {
	return filepath.Join(root, ".canopy", "index.db")
}

// InitRepo scaffolds .canopy/ under root: a config.toml (written only if
// absent) and an empty store. Idempotent — calling it again on an
// already-initialized repo is a no-op beyond opening the existing store.
func InitRepo(root string, log *slog.Logger) (*RepoInfo, error) {
	if log == nil {
		log = slog.Default()
	}

	created := false
	if _, err := os.Stat(config.Path(root)); os.IsNotExist(err) {
		if err := config.Write(root, config.Default()); err != nil {
			return nil, fmt.Errorf("bootstrap: write config: %w", err)
		}
		created = true
		log.Info("bootstrap.config.created", "path", config.Path(root))
	} else if err != nil {
		return nil, fmt.Errorf("bootstrap: stat config: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	st, err := store.Open(dbPath(root), store.Options{MmapBytes: cfg.Indexing.MmapWindowBytes})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	log.Info("bootstrap.repo.ready", "root", root, "db_path", dbPath(root))
	return &RepoInfo{Root: root, DBPath: dbPath(root), Config: cfg, Created: created}, nil
}

// OpenRepo opens an already-initialized repo's store. Callers own the
// returned *store.Store and must Close it.
func OpenRepo(root string, log *slog.Logger) (*store.Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := os.Stat(config.Path(root)); os.IsNotExist(err) {
		return nil, fmt.Errorf("bootstrap: %s is not a Canopy repo (run 'canopy init' first)", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	st, err := store.Open(dbPath(root), store.Options{MmapBytes: cfg.Indexing.MmapWindowBytes})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open store: %w", err)
	}
	log.Debug("bootstrap.repo.open", "root", root)
	return st, nil
}

// Reset removes a repo's .canopy directory entirely, the `canopy reset`
// destructive operation.
func Reset(root string) error {
	return os.RemoveAll(filepath.Join(root, ".canopy"))
}
