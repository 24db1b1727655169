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

// Package main implements canopy-serve: a multi-repo HTTP front end for
// pkg/service.Manager, the shard host a fleet of agent sessions share
// instead of each running its own local index (spec.md §4.9).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canopy-dev/canopy/pkg/service"
)

func main() {
	var (
		addr    = flag.String("addr", envOr("CANOPY_SERVE_ADDR", ":8080"), "Listen address")
		dataDir = flag.String("data-dir", envOr("CANOPY_SERVE_DATA_DIR", "/var/lib/canopy-serve"), "Directory holding each shard's index.db")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Error("canopy-serve.start_failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	mgr := service.NewManager(*dataDir, log, reg)
	defer mgr.Close()

	srv := &server{mgr: mgr, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/v1/add_repo", srv.handleAddRepo)
	mux.HandleFunc("/v1/reindex", srv.handleReindex)
	mux.HandleFunc("/v1/query", srv.handleQuery)
	mux.HandleFunc("/v1/expand", srv.handleExpand)
	mux.HandleFunc("/v1/status", srv.handleStatus)
	mux.HandleFunc("/v1/list_repos", srv.handleListRepos)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("canopy-serve.shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}()

	log.Info("canopy-serve.listen", "addr", *addr, "data_dir", *dataDir)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("canopy-serve.serve_failed", "err", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
