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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/canopy-dev/canopy/internal/bootstrap"
	"github.com/canopy-dev/canopy/internal/contract"
	"github.com/canopy-dev/canopy/pkg/runtime"
)

// mcpRequest is one line of stdin: a tool call by name. The stdio framing
// itself (newline-delimited JSON) is an implementation choice, not a
// protocol this package claims to implement faithfully.
type mcpRequest struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"` // "query" | "expand"
	Params json.RawMessage `json:"params"`
}

type mcpResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type expandParams struct {
	Handles []string `json:"handles"`
}

// runMCP serves query/expand tool calls over stdin/stdout as one
// per-agent session against the repo under --root, for the lifetime of
// the process. Each request line gets exactly one response line.
func runMCP(ctx context.Context) error {
	log := slog.Default()

	st, err := bootstrap.OpenRepo(repoRoot, log)
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	defer st.Close()

	engine := runtime.NewLocal(st, log).WithPredictorScoping(repoRoot)

	dec := bufio.NewScanner(os.Stdin)
	dec.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(os.Stdout)

	for dec.Scan() {
		line := dec.Bytes()
		if len(line) == 0 {
			continue
		}

		var req mcpRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(mcpResponse{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		resp := handleMCPRequest(ctx, engine, req)
		if err := enc.Encode(resp); err != nil {
			log.Error("mcp.write_failed", "err", err)
			return err
		}
	}
	if err := dec.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("mcp: read stdin: %w", err)
	}
	return nil
}

func handleMCPRequest(ctx context.Context, engine runtime.Engine, req mcpRequest) mcpResponse {
	switch req.Tool {
	case "query":
		var params contract.QueryParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcpResponse{ID: req.ID, Error: fmt.Sprintf("bad query params: %v", err)}
		}
		if vr := contract.ValidateQueryParams(params); !vr.OK {
			return mcpResponse{ID: req.ID, Error: vr.Message}
		}
		pack, err := engine.Query(ctx, params)
		if err != nil {
			return mcpResponse{ID: req.ID, Error: err.Error()}
		}
		return mcpResponse{ID: req.ID, Result: pack}

	case "expand":
		var params expandParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcpResponse{ID: req.ID, Error: fmt.Sprintf("bad expand params: %v", err)}
		}
		contents, err := engine.Expand(ctx, params.Handles)
		if err != nil {
			return mcpResponse{ID: req.ID, Error: err.Error()}
		}
		return mcpResponse{ID: req.ID, Result: contents}

	default:
		return mcpResponse{ID: req.ID, Error: fmt.Sprintf("unknown tool %q", req.Tool)}
	}
}
