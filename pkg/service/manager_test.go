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

package service

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/internal/contract"
)

func initRepoWithFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.dev",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.dev")
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.go"), []byte(`package auth

func Authenticate(token string) bool {
	return token != ""
}
`), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), nil, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_AddRepo_RejectsNonVCSRoot(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AddRepo(AddRepoRequest{Path: t.TempDir()})
	require.Error(t, err)
}

func TestManager_AddRepo_IsIdempotentForSamePath(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)

	first, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	second, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	require.Equal(t, first.RepoID, second.RepoID)
}

func TestManager_Reindex_PromotesGenerationAndReady(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)
	added, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)

	res, err := m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Generation)

	status, err := m.Status(added.RepoID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, status.Status)
	require.Equal(t, uint64(1), status.Generation)
	require.NotEmpty(t, status.CommitSHA)
}

func TestManager_Query_ReturnsHandlesStampedWithSource(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)
	added, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	_, err = m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)

	resp, err := m.Query(context.Background(), QueryRequest{
		Repo:        added.RepoID,
		QueryParams: contract.QueryParams{Symbol: "Authenticate"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Handles)
	require.Equal(t, "service", string(resp.Handles[0].Source))
	require.Equal(t, uint64(1), resp.Handles[0].Generation)
}

func TestManager_Expand_RejectsStaleGeneration(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)
	added, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	_, err = m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)

	resp, err := m.Query(context.Background(), QueryRequest{
		Repo:        added.RepoID,
		QueryParams: contract.QueryParams{Symbol: "Authenticate"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Handles)

	_, err = m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)

	_, err = m.Expand(context.Background(), ExpandRequest{
		Repo: added.RepoID,
		Handles: []ExpandHandleRef{
			{ID: resp.Handles[0].ID, Generation: resp.Handles[0].Generation},
		},
	})
	require.Error(t, err)
	envelope, ok := err.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrStaleGenerationCode, envelope.Code)
}

func TestManager_Expand_ReturnsContentForCurrentGeneration(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)
	added, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	_, err = m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)

	resp, err := m.Query(context.Background(), QueryRequest{
		Repo:        added.RepoID,
		QueryParams: contract.QueryParams{Symbol: "Authenticate"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Handles)

	expanded, err := m.Expand(context.Background(), ExpandRequest{
		Repo:    added.RepoID,
		Handles: []ExpandHandleRef{{ID: resp.Handles[0].ID, Generation: 1}},
	})
	require.NoError(t, err)
	require.Len(t, expanded.Contents, 1)
	require.Contains(t, expanded.Contents[0].Content, "Authenticate")
}

func TestManager_Query_UnknownRepoReturnsNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Query(context.Background(), QueryRequest{Repo: "nope"})
	envelope, ok := err.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrNotFoundCode, envelope.Code)
}

func TestManager_Metrics_CountsOperations(t *testing.T) {
	m := newTestManager(t)
	repo := initRepoWithFile(t)
	added, err := m.AddRepo(AddRepoRequest{Path: repo})
	require.NoError(t, err)
	_, err = m.Reindex(context.Background(), added.RepoID)
	require.NoError(t, err)
	_, err = m.Query(context.Background(), QueryRequest{
		Repo:        added.RepoID,
		QueryParams: contract.QueryParams{Symbol: "Authenticate"},
	})
	require.NoError(t, err)

	metrics := m.Metrics()
	require.Equal(t, uint64(1), metrics.Reindexes)
	require.Equal(t, uint64(1), metrics.Queries)
	require.Equal(t, uint64(1), metrics.EvidencePacks)
}
