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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/service"
)

func TestRemote_Query_DecodesPack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/query", r.URL.Path)
		var req service.QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "repo-1", req.Repo)

		resp := service.QueryResponse{
			Pack: &evidence.Pack{
				Handles: []handle.Handle{{ID: "h1", FilePath: "a.go", Source: handle.SourceService}},
			},
			Generation: 3,
			CommitSHA:  "abc123",
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "repo-1", nil, nil)
	pack, err := r.Query(context.Background(), query.ParamQuery{Symbol: "Foo"})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	require.Equal(t, "h1", pack.Handles[0].ID)
}

func TestRemote_Query_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(service.ErrorEnvelope{
			Code:    service.ErrNotFoundCode,
			Message: "no such repo",
		})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "missing-repo", nil, nil)
	_, err := r.Query(context.Background(), query.ParamQuery{Symbol: "Foo"})
	require.Error(t, err)

	var envelope *service.ErrorEnvelope
	require.True(t, errors.As(err, &envelope))
	require.Equal(t, service.ErrNotFoundCode, envelope.Code)
}

func TestRemote_Query_TransportFailureWrapsUnavailable(t *testing.T) {
	r := NewRemote("http://127.0.0.1:1", "repo-1", nil, nil)
	_, err := r.Query(context.Background(), query.ParamQuery{Symbol: "Foo"})
	require.Error(t, err)

	var unavailable *ErrRemoteUnavailable
	require.True(t, errors.As(err, &unavailable))
}

func TestRemote_Expand_ReturnsContents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/expand", r.URL.Path)
		var req service.ExpandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "repo-1", req.Repo)
		require.Len(t, req.Handles, 2)

		resp := service.ExpandResponse{
			Contents: []service.ExpandedContent{
				{HandleID: req.Handles[0].ID, Content: "content-1"},
				{HandleID: req.Handles[1].ID, Content: "content-2"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "repo-1", nil, nil)
	out, err := r.Expand(context.Background(), []string{"id-a", "id-b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "content-1", out[0].Content)
}
