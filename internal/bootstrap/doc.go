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

// Package bootstrap handles first-run scaffolding for a Canopy repo: the
// `.canopy/` directory, its config.toml, and the on-disk store the CLI
// and the stdio tool server both open directly.
//
// # Initialization Workflow
//
//	info, err := bootstrap.InitRepo(".", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("indexed at: %s\n", info.DBPath)
//
//	st, err := bootstrap.OpenRepo(".", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
// InitRepo is idempotent: calling it again on an already-initialized repo
// leaves the existing config.toml and database untouched.
package bootstrap
