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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRepo_CreatesConfigAndStore(t *testing.T) {
	root := t.TempDir()
	info, err := InitRepo(root, nil)
	require.NoError(t, err)
	require.True(t, info.Created)
	require.FileExists(t, dbPath(root))
}

func TestInitRepo_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	_, err := InitRepo(root, nil)
	require.NoError(t, err)

	info, err := InitRepo(root, nil)
	require.NoError(t, err)
	require.False(t, info.Created, "second call must not overwrite config.toml")
}

func TestOpenRepo_FailsWithoutInit(t *testing.T) {
	root := t.TempDir()
	_, err := OpenRepo(root, nil)
	require.Error(t, err)
}

func TestOpenRepo_SucceedsAfterInit(t *testing.T) {
	root := t.TempDir()
	_, err := InitRepo(root, nil)
	require.NoError(t, err)

	st, err := OpenRepo(root, nil)
	require.NoError(t, err)
	defer st.Close()
}

func TestReset_RemovesCanopyDir(t *testing.T) {
	root := t.TempDir()
	_, err := InitRepo(root, nil)
	require.NoError(t, err)

	require.NoError(t, Reset(root))
	_, err = OpenRepo(root, nil)
	require.Error(t, err)
}
