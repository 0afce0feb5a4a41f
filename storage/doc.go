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

// Package storage provides the local persistence layer of ragpilot.
//
// Two concerns are persisted client side:
//   - the run journal: every pipeline run that reached a terminal stage,
//     including the results of the stages that completed and the failure
//   - the session state: the project selected last, so command line
//     invocations can share a working context
//
// Nothing here mirrors backend data. Projects, documents and chunks are owned
// by the backend and are never cached.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the repository
// interfaces defined here:
//
//	runs, err := badger.NewRunRepository(backend) // returns storage.RunRepository
//
// Internal helpers may return concrete types.
//
// # Serialization
//
// Records are encoded with mus-go. Stage payloads are untyped backend JSON
// objects and are carried inside the record as JSON text.
package storage
