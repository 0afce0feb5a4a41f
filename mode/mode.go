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

// Package mode decides whether operations exercise the real backend or
// simulated effects.
//
// Two independent flags make up the state: the user-controlled mock toggle
// and a fallback flag raised by the system once a live project listing
// fails. The effective mode is mock when either flag is set. The fallback
// flag is sticky for the lifetime of the Controller; creating a new
// Controller (a new session) is the only way to clear it.
package mode

import (
	"log/slog"
	"sync/atomic"
)

// Scope names the live dependency whose failure is being reported.
type Scope string

const (
	// ScopeProjects is the project listing. Its failure trips the fallback.
	ScopeProjects Scope = "projects"
)

// State is a point-in-time view of the controller.
type State struct {
	MockEnabled    bool
	FallbackActive bool
}

// Effective reports whether the state resolves to mock execution.
func (s State) Effective() bool {
	return s.MockEnabled || s.FallbackActive
}

func (s State) String() string {
	switch {
	case s.FallbackActive:
		return "mock (fallback)"
	case s.MockEnabled:
		return "mock"
	default:
		return "live"
	}
}

// Controller is the single source of truth for the execution mode.
// It is safe for concurrent use.
type Controller struct {
	mockEnabled    atomic.Bool
	fallbackActive atomic.Bool
	logger         *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMock sets the initial user mock toggle.
func WithMock(enabled bool) Option {
	return func(c *Controller) {
		c.mockEnabled.Store(enabled)
	}
}

// NewController creates a Controller in live mode unless WithMock is given.
func NewController(opts ...Option) *Controller {
	c := &Controller{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "mode")
	return c
}

// IsEffectiveMock reports whether the next operation must be simulated.
func (c *Controller) IsEffectiveMock() bool {
	return c.mockEnabled.Load() || c.fallbackActive.Load()
}

// SetUserMock sets the user toggle. It has no effect on an active fallback.
func (c *Controller) SetUserMock(enabled bool) {
	c.mockEnabled.Store(enabled)
	c.logger.Debug("user mock toggled", "enabled", enabled, "fallback", c.fallbackActive.Load())
}

// ReportLiveFailure records the failure of a live dependency. Only
// ScopeProjects activates the fallback; other scopes are logged and ignored.
func (c *Controller) ReportLiveFailure(scope Scope) {
	if scope != ScopeProjects {
		c.logger.Debug("ignoring live failure for unknown scope", "scope", scope)
		return
	}
	if c.fallbackActive.CompareAndSwap(false, true) {
		c.logger.Warn("live project listing failed, switching to simulated backend for this session")
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	return State{
		MockEnabled:    c.mockEnabled.Load(),
		FallbackActive: c.fallbackActive.Load(),
	}
}
