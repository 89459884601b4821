/*
Copyright 2026 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the GSP device configuration, its defaults and validation, and the YAML file format it can be
// loaded from.
package config

import (
	"fmt"
	"time"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
)

const (
	// defaultRevision is the hardware revision assumed when none is configured.
	defaultRevision = core.RevisionR8P0
	// defaultPoolSize is the number of compute-config buffers allocated per queue.
	defaultPoolSize = 8
	// defaultJobTimeout bounds how long the worker waits for a completion interrupt.
	defaultJobTimeout = 500 * time.Millisecond
	// defaultSubmitTimeout bounds how long Submit waits for a free buffer.
	defaultSubmitTimeout = 1 * time.Second
	// defaultSubmitPollInterval is how often Submit re-checks an exhausted queue.
	defaultSubmitPollInterval = 2 * time.Millisecond
	// defaultHistorySize is the number of finished jobs kept for status queries.
	defaultHistorySize = 256
	// defaultWorkerName names the worker attached to the queue.
	defaultWorkerName = "gsp-worker"
)

// Config holds the configuration of a GSP device.
type Config struct {
	// Revision selects the engine variant.
	// Optional: Defaults to `defaultRevision`.
	Revision core.Revision

	// PoolSize is the number of buffers in the compute-config pool.
	// Optional: Defaults to `defaultPoolSize` (8).
	PoolSize int

	// MaxLayers bounds the layers per buffer.
	// Optional: If zero, the revision's own limit is used. It may not exceed that limit.
	MaxLayers int

	// JobTimeout is how long the worker waits for a job's completion interrupt before resetting the engine.
	// Optional: Defaults to `defaultJobTimeout` (500ms).
	JobTimeout time.Duration

	// SubmitTimeout is how long Submit waits for a free buffer when the pool is exhausted.
	// Optional: Defaults to `defaultSubmitTimeout` (1s). Ignored when RejectWhenExhausted is set.
	SubmitTimeout time.Duration

	// SubmitPollInterval is how often Submit re-checks an exhausted pool.
	// Optional: Defaults to `defaultSubmitPollInterval` (2ms).
	SubmitPollInterval time.Duration

	// RejectWhenExhausted makes Submit fail immediately instead of waiting for a free buffer.
	RejectWhenExhausted bool

	// HistorySize is the number of finished jobs whose outcome is kept for JobStatus.
	// Optional: Defaults to `defaultHistorySize` (256).
	HistorySize int

	// WorkerName names the worker in logs, metrics and the queue back-reference.
	// Optional: Defaults to `defaultWorkerName`.
	WorkerName string

	// SimulatedLatency overrides the per-job execution time of the simulated engine.
	// Optional: If zero, the revision's cost model is used.
	SimulatedLatency time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// NewConfig creates a new Config with the given options, applying defaults and validation.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		Revision:           defaultRevision,
		PoolSize:           defaultPoolSize,
		JobTimeout:         defaultJobTimeout,
		SubmitTimeout:      defaultSubmitTimeout,
		SubmitPollInterval: defaultSubmitPollInterval,
		HistorySize:        defaultHistorySize,
		WorkerName:         defaultWorkerName,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.MaxLayers == 0 {
		p, _ := core.ProfileFor(c.Revision)
		c.MaxLayers = p.MaxLayers
	}
	return c, nil
}

// WithRevision sets the hardware revision.
func WithRevision(rev core.Revision) ConfigOption {
	return func(c *Config) {
		c.Revision = rev
	}
}

// WithPoolSize sets the number of buffers.
func WithPoolSize(n int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = n
	}
}

// WithMaxLayers sets the per-buffer layer bound.
func WithMaxLayers(n int) ConfigOption {
	return func(c *Config) {
		c.MaxLayers = n
	}
}

// WithJobTimeout sets the completion timeout.
func WithJobTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.JobTimeout = d
	}
}

// WithSubmitTimeout sets how long Submit waits for a free buffer.
func WithSubmitTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.SubmitTimeout = d
	}
}

// WithSubmitPollInterval sets the exhausted-pool poll interval.
func WithSubmitPollInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.SubmitPollInterval = d
	}
}

// WithRejectWhenExhausted makes Submit fail fast on an exhausted pool.
func WithRejectWhenExhausted(reject bool) ConfigOption {
	return func(c *Config) {
		c.RejectWhenExhausted = reject
	}
}

// WithHistorySize sets the job history size.
func WithHistorySize(n int) ConfigOption {
	return func(c *Config) {
		c.HistorySize = n
	}
}

// WithWorkerName sets the worker name.
func WithWorkerName(name string) ConfigOption {
	return func(c *Config) {
		c.WorkerName = name
	}
}

// WithSimulatedLatency overrides the simulated engine's execution time.
func WithSimulatedLatency(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.SimulatedLatency = d
	}
}

// validate checks the configuration for validity.
func (c *Config) validate() error {
	p, err := core.ProfileFor(c.Revision)
	if err != nil {
		return err
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("PoolSize must be positive, but got %d", c.PoolSize)
	}
	if c.MaxLayers < 0 || c.MaxLayers > p.MaxLayers {
		return fmt.Errorf("MaxLayers must be between 0 and %d for %s, but got %d", p.MaxLayers, c.Revision, c.MaxLayers)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JobTimeout must be positive, but got %v", c.JobTimeout)
	}
	if c.SubmitTimeout < 0 {
		return fmt.Errorf("SubmitTimeout cannot be negative, but got %v", c.SubmitTimeout)
	}
	if c.SubmitPollInterval <= 0 {
		return fmt.Errorf("SubmitPollInterval must be positive, but got %v", c.SubmitPollInterval)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("HistorySize must be positive, but got %d", c.HistorySize)
	}
	if c.WorkerName == "" {
		return fmt.Errorf("WorkerName cannot be empty")
	}
	if c.SimulatedLatency < 0 {
		return fmt.Errorf("SimulatedLatency cannot be negative, but got %v", c.SimulatedLatency)
	}
	return nil
}
