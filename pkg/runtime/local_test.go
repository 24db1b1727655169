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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/predictor"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "canopy.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedLoginFile(t *testing.T, s *store.Store) {
	t.Helper()
	b, err := s.BeginBatch()
	require.NoError(t, err)
	span := handle.Span{Start: 0, End: 40}
	node := store.NodeRow{
		HandleID: handle.ID("src/routes/login.go", span, "Authenticate"),
		FilePath: "src/routes/login.go",
		NodeType: handle.NodeFunction,
		Name:     "Authenticate",
		Span:     span,
		Lines:    handle.LineRange{Start: 1, End: 4},
		Tokens:   12,
		Body:     "func Authenticate(token string) bool { return token != \"\" }",
		Preview:  "func Authenticate(token string) bool { ... }",
	}
	require.NoError(t, b.UpsertFile(store.FileRecord{Path: "src/routes/login.go", ContentSHA: "seed"}))
	require.NoError(t, b.InsertNodesFor("src/routes/login.go", []store.NodeRow{node}, nil))
	require.NoError(t, b.Commit())
}

func TestLocal_Query_StampsSourceLocal(t *testing.T) {
	s := newTestStore(t)
	seedLoginFile(t, s)
	l := NewLocal(s, nil)

	pack, err := l.Query(context.Background(), query.ParamQuery{Symbol: "Authenticate", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	require.Equal(t, handle.SourceLocal, pack.Handles[0].Source)
}

func TestLocal_Expand_HydratesContentAndRecordsFeedback(t *testing.T) {
	s := newTestStore(t)
	seedLoginFile(t, s)
	l := NewLocal(s, nil)

	pack, err := l.Query(context.Background(), query.ParamQuery{Symbol: "Authenticate", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	id := pack.Handles[0].ID

	contents, err := l.Expand(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	require.Equal(t, id, contents[0].HandleID)
	require.Contains(t, contents[0].Content, "func Authenticate")

	recent, err := s.RecentlyExpanded(context.Background(), 10)
	require.NoError(t, err)
	require.Contains(t, recent, id)
}

// TestLocal_Query_PredictorScopesFirstIndexOfLargeRepo covers spec §4.7's
// scenario S5: a repo over predictor.LargeRepoFileCount files, queried
// before any index exists, should only index the subset the query's
// keywords predict rather than the whole tree.
func TestLocal_Query_PredictorScopesFirstIndexOfLargeRepo(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "auth"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "auth", "handler.go"),
		[]byte("package auth\n\nfunc Login() bool { return true }\n"),
		0o644,
	))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "misc"), 0o755))
	for i := 0; i < predictor.LargeRepoFileCount+5; i++ {
		name := filepath.Join(root, "misc", fmt.Sprintf("file%d.go", i))
		require.NoError(t, os.WriteFile(name, []byte("package misc\n"), 0o644))
	}

	s := newTestStore(t)
	l := NewLocal(s, nil).WithPredictorScoping(root)

	pack, err := l.Query(context.Background(), query.ParamQuery{Symbol: "Login", Kind: "definition"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	require.Equal(t, "auth/handler.go", pack.Handles[0].FilePath)

	stats, err := s.Stat(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Files, "only the predicted auth/** subset should have been indexed")
}

func TestLocal_Expand_UnknownHandleErrors(t *testing.T) {
	s := newTestStore(t)
	seedLoginFile(t, s)
	l := NewLocal(s, nil)

	_, err := l.Expand(context.Background(), []string{"not-a-real-handle"})
	require.Error(t, err)
}
