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

// Package query turns a question into one conversational turn.
//
// A Coordinator appends the user turn, retrieves chunks for display,
// requests a generated answer and appends exactly one assistant turn: the
// answer on success or a generic apology on failure. Failure detail never
// enters the transcript; it is published on a Notifier instead.
//
// Retrieval and generation are independent backend calls. The chunks shown
// for attribution are not guaranteed to be the ones the answer was built
// from.
package query
