// Copyright 2025 Poiesic Systems
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

// Package gateway is the typed client for the RAG backend REST surface.
//
// One method exists per backend capability. The client enforces the wire
// contract and resolves the base path; it carries no business logic, never
// retries and never caches. The single exception is CreateProject, which
// tolerates a 307 from the backend by replaying the request once against the
// trailing-slash path.
//
// Failures are returned as *TransportError, which carries the HTTP status
// (0 for network failures), a message taken from the backend payload when
// present, and the raw payload itself:
//
//	client, err := gateway.NewClient(gateway.NewConfig(
//	    gateway.WithBaseURL("http://localhost:5000"),
//	))
//	projects, err := client.ListProjects(ctx)
//	if gateway.StatusOf(err) == http.StatusNotFound {
//	    ...
//	}
package gateway
