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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/service"
)

// Remote is an HTTP client of cmd/canopy-serve's JSON framing of
// pkg/service's payload contracts (spec §6). A failed or timed-out
// request yields ErrRemoteUnavailable, which Auto treats as "fall back
// to local-only" rather than a hard error (spec §5).
type Remote struct {
	baseURL string
	repoID  string
	client  *http.Client
	log     *slog.Logger
}

// ErrRemoteUnavailable wraps the underlying transport error so callers
// can distinguish "service said no" from "service unreachable".
type ErrRemoteUnavailable struct{ Cause error }

func (e *ErrRemoteUnavailable) Error() string { return "runtime: remote unavailable: " + e.Cause.Error() }
func (e *ErrRemoteUnavailable) Unwrap() error  { return e.Cause }

// NewRemote builds a Remote engine against a running canopy-serve
// instance, addressing one already-registered repo by id.
func NewRemote(baseURL, repoID string, client *http.Client, log *slog.Logger) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), repoID: repoID, client: client, log: log}
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("runtime: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("runtime: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &ErrRemoteUnavailable{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope service.ErrorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if envelope.Code == "" {
			envelope.Code = service.ErrInternalCode
			envelope.Message = fmt.Sprintf("remote returned status %d", resp.StatusCode)
		}
		return &envelope
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("runtime: decode response: %w", err)
	}
	return nil
}

// Query sends params to the service and returns its evidence pack,
// stamped source=service by the shard.
func (r *Remote) Query(ctx context.Context, params query.ParamQuery) (*evidence.Pack, error) {
	req := service.QueryRequest{Repo: r.repoID, QueryParams: params}
	var resp service.QueryResponse
	if err := r.do(ctx, http.MethodPost, "/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Pack, nil
}

// Expand hydrates content for ids via the service.
func (r *Remote) Expand(ctx context.Context, ids []string) ([]ExpandedContent, error) {
	refs := make([]service.ExpandHandleRef, len(ids))
	for i, id := range ids {
		refs[i] = service.ExpandHandleRef{ID: id}
	}
	req := service.ExpandRequest{Repo: r.repoID, Handles: refs}
	var resp service.ExpandResponse
	if err := r.do(ctx, http.MethodPost, "/v1/expand", req, &resp); err != nil {
		return nil, err
	}
	out := make([]ExpandedContent, len(resp.Contents))
	for i, c := range resp.Contents {
		out[i] = ExpandedContent{HandleID: c.HandleID, Content: c.Content}
	}
	return out, nil
}
