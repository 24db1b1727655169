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

package indexing

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/store"
	"github.com/canopy-dev/canopy/pkg/symbols"
)

func newTestPipeline(t *testing.T, root string) (*Pipeline, *store.Store, *symbols.Cache) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "canopy.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sc := symbols.New()
	p := New(Config{Root: root, ParseWorkers: 2}, st, sc, slog.Default())
	return p, st, sc
}

func TestPipeline_Run_IndexesFilesAndPopulatesSymbolCache(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", []byte(`package main

func Hello() string {
	return "hi"
}
`))
	writeTestFile(t, root, "README.md", []byte("# Title\n\nSome text.\n"))

	p, st, sc := newTestPipeline(t, root)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, res.FilesDiscovered)
	require.Equal(t, 2, res.FilesIndexed)
	require.Equal(t, 0, res.FilesSkipped)
	require.Equal(t, 0, res.ParseErrors)
	require.Greater(t, res.NodesExtracted, 0)

	nodes, err := st.NodesInFile(context.Background(), "main.go")
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	require.NotEmpty(t, sc.NamesInFile("main.go"))
	locs := sc.Lookup("Hello")
	require.NotEmpty(t, locs)
	require.Equal(t, "main.go", locs[0].FilePath)
}

func TestPipeline_Run_SecondRunSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", []byte("package main\n\nfunc A() {}\n"))

	p, _, _ := newTestPipeline(t, root)
	first, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.FilesIndexed)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.FilesIndexed)
	require.Equal(t, 1, second.FilesSkipped)
}

func TestPipeline_Run_ReindexesChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", []byte("package main\n\nfunc A() {}\n"))

	p, st, sc := newTestPipeline(t, root)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	writeTestFile(t, root, "main.go", []byte("package main\n\nfunc A() {}\nfunc B() {}\n"))
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesIndexed)

	require.NotEmpty(t, sc.Lookup("B"))
	nodes, err := st.NodesInFile(context.Background(), "main.go")
	require.NoError(t, err)
	var haveB bool
	for _, n := range nodes {
		if n.Name == "B" {
			haveB = true
		}
	}
	require.True(t, haveB)
}

func TestPipeline_Run_HandlesUnparsableLanguageViaChunker(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "notes.txt", []byte("line one\nline two\nline three\n"))

	p, _, _ := newTestPipeline(t, root)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesIndexed)
	require.Equal(t, 0, res.ParseErrors)
}
