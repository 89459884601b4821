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

// Package core abstracts the GSP scaling/composition engine. The engine variant is chosen once, from the hardware
// revision, and exposed through the Core interface together with a capability Profile. Completion interrupts are
// delivered as Events on a single-producer channel so interrupt handling never touches queue state directly.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
)

var (
	// ErrUnsupportedRevision indicates a hardware revision with no known profile.
	ErrUnsupportedRevision = errors.New("unsupported GSP revision")

	// ErrNotInitialized indicates Trigger before Init.
	ErrNotInitialized = errors.New("GSP core not initialized")

	// ErrBusy indicates Trigger while a job is still executing.
	ErrBusy = errors.New("GSP core busy")

	// ErrUnsupportedJob indicates a job needing a capability the revision lacks.
	ErrUnsupportedJob = errors.New("job not supported by GSP revision")
)

// Event is a completion interrupt.
type Event struct {
	JobID string
	// Status is the raw interrupt status word.
	Status uint32
	Err    error
}

// Register is one entry of a register dump.
type Register struct {
	Offset uint32
	Value  uint32
}

// Core is the control surface of one GSP engine.
type Core interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	// Profile returns the capabilities of the selected revision.
	Profile() Profile
	// Init powers the engine up and programs the global configuration.
	Init(ctx context.Context) error
	// Reset aborts any running job and restores the power-on register state.
	Reset() error
	// Trigger programs the buffer's layers and starts execution. Completion is reported on Interrupts.
	Trigger(buf *kcfg.Buffer) error
	// Interrupts delivers completion events. There is a single producer.
	Interrupts() <-chan Event
	// Dump returns the programmed registers in offset order.
	Dump() []Register
	// Close releases the engine. Pending completions are dropped.
	Close() error
}

// Option configures a Core.
type Option func(*simCore)

// WithClock sets the clock used to time job execution.
func WithClock(c clock.Clock) Option {
	return func(s *simCore) {
		s.clock = c
	}
}

// WithLatency overrides the profile-derived execution time of every job.
func WithLatency(d time.Duration) Option {
	return func(s *simCore) {
		s.latency = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(s *simCore) {
		s.logger = logger
	}
}

// WithStall makes the engine accept jobs but never raise their completion interrupt.
func WithStall() Option {
	return func(s *simCore) {
		s.stall = true
	}
}

// New returns the engine for a hardware revision.
func New(rev Revision, opts ...Option) (Core, error) {
	p, err := ProfileFor(rev)
	if err != nil {
		return nil, err
	}
	return newSimCore(p, opts...), nil
}
