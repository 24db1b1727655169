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

package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/service"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=canopy-test", "GIT_AUTHOR_EMAIL=test@canopy.dev",
		"GIT_COMMITTER_NAME=canopy-test", "GIT_COMMITTER_EMAIL=test@canopy.dev",
	)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func writeRepoFile(t *testing.T, dir, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
}

func initAutoTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	writeRepoFile(t, dir, "src/clean.go", []byte("package src\n\nfunc Stable() {}\n"))
	writeRepoFile(t, dir, "src/mod.go", []byte("package src\n\nfunc Changed() {}\n"))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

// fakeServiceServer returns an httptest.Server standing in for
// cmd/canopy-serve, always answering /v1/query with one stale handle
// from src/mod.go (as if the service indexed it before the local edit)
// plus one from src/clean.go (unaffected).
func fakeServiceServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/query":
			resp := service.QueryResponse{
				Pack: &evidence.Pack{
					Handles: []handle.Handle{
						{ID: "svc-clean", FilePath: "src/clean.go", Score: 0.8, Source: handle.SourceService},
						{ID: "svc-mod-stale", FilePath: "src/mod.go", Score: 0.9, Source: handle.SourceService},
					},
					TotalMatches: 2,
				},
				Generation: 1,
				CommitSHA:  "deadbeef",
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAuto_Query_DropsStaleDirtyHandlesAndMergesFreshLocal(t *testing.T) {
	repoRoot := initAutoTestRepo(t)
	// Dirty src/mod.go after the commit the service's stale handle describes.
	writeRepoFile(t, repoRoot, "src/mod.go", []byte("package src\n\nfunc ChangedNow() {}\n"))

	srv := fakeServiceServer(t)
	defer srv.Close()

	st := newTestStore(t)
	local := NewLocal(st, nil)
	remote := NewRemote(srv.URL, "repo-1", nil, nil)
	auto := NewAuto(local, remote, repoRoot, nil)

	pack, err := auto.Query(context.Background(), query.ParamQuery{Symbol: "ChangedNow", Kind: "definition"})
	require.NoError(t, err)

	var sawStale, sawFreshLocal, sawClean bool
	for _, h := range pack.Handles {
		switch h.ID {
		case "svc-mod-stale":
			sawStale = true
		case "svc-clean":
			sawClean = true
		}
		if h.FilePath == "src/mod.go" && h.Source == handle.SourceLocal {
			sawFreshLocal = true
		}
	}
	require.False(t, sawStale, "stale service handle for the dirty file must be dropped")
	require.True(t, sawClean, "unaffected service handle must survive the merge")
	require.True(t, sawFreshLocal, "freshly reindexed local handle for the dirty file must be present")
}

func TestAuto_Query_RemoteFailureDegradesToLocalOnly(t *testing.T) {
	repoRoot := initAutoTestRepo(t)
	writeRepoFile(t, repoRoot, "src/mod.go", []byte("package src\n\nfunc ChangedNow() {}\n"))

	st := newTestStore(t)
	local := NewLocal(st, nil)
	// No server listening at this address: every remote call fails.
	remote := NewRemote("http://127.0.0.1:1", "repo-1", nil, nil)
	auto := NewAuto(local, remote, repoRoot, nil)

	pack, err := auto.Query(context.Background(), query.ParamQuery{Symbol: "ChangedNow", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	require.Equal(t, handle.SourceLocal, pack.Handles[0].Source)
}

func TestAuto_Query_CleanRepoPassesThroughServiceHandlesUnchanged(t *testing.T) {
	repoRoot := initAutoTestRepo(t)

	srv := fakeServiceServer(t)
	defer srv.Close()

	st := newTestStore(t)
	local := NewLocal(st, nil)
	remote := NewRemote(srv.URL, "repo-1", nil, nil)
	auto := NewAuto(local, remote, repoRoot, nil)

	pack, err := auto.Query(context.Background(), query.ParamQuery{Symbol: "Changed", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 2)
	for _, h := range pack.Handles {
		require.Equal(t, handle.SourceService, h.Source)
	}
}

func TestAuto_Expand_PrefersLocalThenFallsBackToRemote(t *testing.T) {
	repoRoot := initAutoTestRepo(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/expand", r.URL.Path)
		var req service.ExpandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := service.ExpandResponse{Contents: []service.ExpandedContent{
			{HandleID: req.Handles[0].ID, Content: "remote-content"},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	st := newTestStore(t)
	seedLoginFile(t, st)
	local := NewLocal(st, nil)
	remote := NewRemote(srv.URL, "repo-1", nil, nil)
	auto := NewAuto(local, remote, repoRoot, nil)

	localPack, err := local.Query(context.Background(), query.ParamQuery{Symbol: "Authenticate", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, localPack.Handles, 1)
	localID := localPack.Handles[0].ID

	out, err := auto.Expand(context.Background(), []string{localID, "svc-only-id"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string]string{}
	for _, c := range out {
		byID[c.HandleID] = c.Content
	}
	require.Contains(t, byID[localID], "func Authenticate")
	require.Equal(t, "remote-content", byID["svc-only-id"])
}
