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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/canopy-dev/canopy/pkg/service"
)

// server adapts pkg/service.Manager's operations to canopy-serve's HTTP
// framing: one JSON envelope in, one JSON envelope (or service.ErrorEnvelope
// with a matching status) out.
type server struct {
	mgr *service.Manager
	log *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *server) handleAddRepo(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req service.AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &service.ErrorEnvelope{Code: service.ErrInternalCode, Message: err.Error()})
		return
	}
	resp, err := s.mgr.AddRepo(req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	repoID := r.URL.Query().Get("repo")
	if repoID == "" {
		writeError(w, http.StatusBadRequest, &service.ErrorEnvelope{Code: service.ErrInternalCode, Message: "missing repo query parameter"})
		return
	}
	resp, err := s.mgr.Reindex(r.Context(), repoID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req service.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &service.ErrorEnvelope{Code: service.ErrInternalCode, Message: err.Error()})
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	resp, err := s.mgr.Query(ctx, req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleExpand(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req service.ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &service.ErrorEnvelope{Code: service.ErrInternalCode, Message: err.Error()})
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	resp, err := s.mgr.Expand(ctx, req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	repoID := r.URL.Query().Get("repo")
	if repoID == "" {
		writeJSON(w, http.StatusOK, s.mgr.Metrics())
		return
	}
	status, err := s.mgr.Status(repoID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.ListRepos())
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, &service.ErrorEnvelope{
			Code: service.ErrInternalCode, Message: "method not allowed",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceErr maps a service.ErrorEnvelope to the status code spec.md
// §6 assigns its code, defaulting to 500 for anything else.
func writeServiceErr(w http.ResponseWriter, err error) {
	var envelope *service.ErrorEnvelope
	if !errors.As(err, &envelope) {
		envelope = &service.ErrorEnvelope{Code: service.ErrInternalCode, Message: err.Error()}
	}
	status := http.StatusInternalServerError
	switch envelope.Code {
	case service.ErrNotFoundCode:
		status = http.StatusNotFound
	case service.ErrStaleGenerationCode:
		status = http.StatusConflict
	case service.ErrAlreadyIndexingCode:
		status = http.StatusConflict
	}
	writeError(w, status, envelope)
}

func writeError(w http.ResponseWriter, status int, envelope *service.ErrorEnvelope) {
	writeJSON(w, status, envelope)
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Second)
}
