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

package gateway

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds the backend connection settings. It is fixed once a
// Client has been created from it.
type Config struct {
	// BaseURL is the scheme and host of the backend.
	// Example: "http://localhost:5000"
	BaseURL string

	// BasePath is the API prefix prepended to every operation path.
	// Default: "/api/v1"
	BasePath string

	// Timeout bounds a single request including reading the body.
	// Zero disables the client-side timeout.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBaseURL sets the backend base URL.
func WithBaseURL(baseURL string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = baseURL
	}
}

// WithBasePath sets the API prefix.
func WithBasePath(basePath string) ConfigOption {
	return func(c *Config) {
		c.BasePath = basePath
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header value.
func WithUserAgent(userAgent string) ConfigOption {
	return func(c *Config) {
		c.UserAgent = userAgent
	}
}

// DefaultConfig returns a Config pointing at a local backend.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:5000",
		BasePath:  "/api/v1",
		Timeout:   60 * time.Second,
		UserAgent: "ragpilot",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBaseURL("http://rag.internal:8000"),
//	    WithTimeout(2*time.Minute),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts the configuration in canonical form: no trailing slash on
// the base URL, a single leading slash and no trailing slash on the base path.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	path := strings.Trim(strings.TrimSpace(c.BasePath), "/")
	if path == "" {
		c.BasePath = ""
	} else {
		c.BasePath = "/" + path
	}
}

// Validate checks that the configuration is usable.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.BaseURL == "" {
		return errors.New("gateway config: BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("gateway config: BaseURL must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("gateway config: BaseURL scheme must be http or https")
	}
	if c.Timeout < 0 {
		return errors.New("gateway config: Timeout cannot be negative")
	}
	return nil
}

// Endpoint returns the absolute URL prefix for all operations.
func (c Config) Endpoint() string {
	return c.BaseURL + c.BasePath
}
