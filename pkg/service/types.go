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

// Package service hosts the multi-repo shard state machine and its
// request/response payload types (spec §4.9, §6). HTTP framing lives in
// cmd/canopy-serve; this package defines the semantics only.
package service

import (
	"github.com/canopy-dev/canopy/internal/contract"
	"github.com/canopy-dev/canopy/pkg/evidence"
)

// Status enumerates a shard's lifecycle state.
type Status string

const (
	StatusUnindexed Status = "unindexed"
	StatusIndexing  Status = "indexing"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// AddRepoRequest is the add_repo payload (spec §6): path must resolve to
// a VCS root.
type AddRepoRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// AddRepoResponse echoes the assigned id, stable across repeated adds of
// the same path.
type AddRepoResponse struct {
	RepoID string `json:"repo_id"`
	Name   string `json:"name"`
}

// ReindexRequest optionally scopes a reindex to a glob (unused today but
// reserved for a future "reindex this subtree only" path).
type ReindexRequest struct {
	Glob string `json:"glob,omitempty"`
}

// ReindexResponse reports whether the call started a new reindex or
// coalesced onto one already running.
type ReindexResponse struct {
	Generation uint64 `json:"generation"`
	Status     string `json:"status"` // "indexing" | "already_indexing"
	CommitSHA  string `json:"commit_sha,omitempty"`
}

// QueryRequest is {repo, ...QueryParams} (spec §6).
type QueryRequest struct {
	Repo string `json:"repo"`
	contract.QueryParams
}

// QueryResponse is the query response envelope, with handles stamped
// source=service by the shard before being returned.
type QueryResponse struct {
	*evidence.Pack
	Generation uint64 `json:"generation"`
	CommitSHA  string `json:"commit_sha,omitempty"`
}

// ExpandHandleRef identifies one handle to expand, optionally pinning the
// generation the caller last observed it at.
type ExpandHandleRef struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation,omitempty"`
}

// ExpandRequest is {repo, handles:[{id, generation?}]} (spec §6).
type ExpandRequest struct {
	Repo    string            `json:"repo"`
	Handles []ExpandHandleRef `json:"handles"`
}

// ExpandedContent is one hydrated handle body.
type ExpandedContent struct {
	HandleID string `json:"handle_id"`
	Content  string `json:"content"`
}

// ExpandResponse is {contents:[...]} (spec §6).
type ExpandResponse struct {
	Contents []ExpandedContent `json:"contents"`
}

// ShardStatus is one repo's entry in list_repos/status (spec §4.9).
type ShardStatus struct {
	RepoID     string `json:"repo_id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Status     Status `json:"status"`
	Generation uint64 `json:"generation"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorCode enumerates the service's structured error envelope codes
// (spec §6).
type ErrorCode string

const (
	ErrNotFoundCode        ErrorCode = "not_found"
	ErrStaleGenerationCode ErrorCode = "stale_generation"
	ErrInternalCode        ErrorCode = "internal_error"
	ErrAlreadyIndexingCode ErrorCode = "already_indexing"
)

// ErrorEnvelope is {code, message, hint} (spec §6).
type ErrorEnvelope struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Metrics is the counters metrics returns (spec §4.9): queries, expands,
// reindexes, and evidence packs served across all shards.
type Metrics struct {
	Queries       uint64 `json:"queries"`
	Expands       uint64 `json:"expands"`
	Reindexes     uint64 `json:"reindexes"`
	EvidencePacks uint64 `json:"evidence_packs"`
}
