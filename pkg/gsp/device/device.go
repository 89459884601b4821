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

// Package device owns one GSP engine: its compute-config pool and queue, the engine itself and the worker serving
// it. Submitters go through Device; only the worker touches the queue's consumer side.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/config"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/metrics"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/worker"
)

var (
	// ErrExhausted indicates no empty buffer became available for a submission.
	ErrExhausted = errors.New("GSP compute-config pool exhausted")

	// ErrAlreadyRunning indicates a second call to Run.
	ErrAlreadyRunning = errors.New("GSP device already running")
)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithClock sets the clock shared by the engine and the worker.
func WithClock(c clock.Clock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// WithCore replaces the engine selected from the configured revision.
func WithCore(c core.Core) Option {
	return func(d *Device) {
		d.core = c
	}
}

// Device is a GSP engine with its compute-config queue.
type Device struct {
	cfg     *config.Config
	queue   *kcfg.Queue
	core    core.Core
	worker  *worker.Worker
	clock   clock.Clock
	logger  logr.Logger
	running atomic.Bool
}

// New builds a device from cfg. The engine is not powered up until Run.
func New(cfg *config.Config, opts ...Option) (*Device, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	d := &Device{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithName("gsp-device").WithValues("revision", cfg.Revision)

	if d.core == nil {
		coreOpts := []core.Option{core.WithClock(d.clock), core.WithLogger(d.logger)}
		if cfg.SimulatedLatency > 0 {
			coreOpts = append(coreOpts, core.WithLatency(cfg.SimulatedLatency))
		}
		c, err := core.New(cfg.Revision, coreOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GSP core: %w", err)
		}
		d.core = c
	}

	q, err := kcfg.NewQueue(cfg.PoolSize, cfg.MaxLayers, d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute-config queue: %w", err)
	}
	d.queue = q

	w, err := worker.New(cfg.WorkerName, q, d.core,
		worker.WithJobTimeout(cfg.JobTimeout),
		worker.WithHistorySize(cfg.HistorySize),
		worker.WithClock(d.clock),
		worker.WithLogger(d.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create GSP worker: %w", err)
	}
	d.worker = w

	metrics.RecordQueueStats(q.Stats())
	return d, nil
}

// Run powers the engine up and serves the queue until ctx ends. On return the queue is torn down and the engine
// closed; a device cannot be run twice.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.logger.V(logutil.DEFAULT).Info("GSP device starting", "poolSize", d.cfg.PoolSize, "maxLayers", d.cfg.MaxLayers)

	if err := d.core.Init(ctx); err != nil {
		return multierr.Append(fmt.Errorf("failed to initialize GSP core: %w", err), d.shutdown())
	}
	err := d.worker.Run(ctx)
	return multierr.Append(err, d.shutdown())
}

func (d *Device) shutdown() error {
	if n := d.queue.Teardown(); n > 0 {
		d.logger.V(logutil.DEFAULT).Info("Discarded waiting jobs on shutdown", "count", n)
	}
	metrics.RecordQueueStats(d.queue.Stats())
	if err := d.core.Close(); err != nil {
		return fmt.Errorf("failed to close GSP core: %w", err)
	}
	d.logger.V(logutil.DEFAULT).Info("GSP device stopped")
	return nil
}

// Submit queues a job on the filled list and returns its fence. When the pool is exhausted it waits up to the
// configured submit timeout for a buffer, unless the device rejects on exhaustion.
func (d *Device) Submit(ctx context.Context, job kcfg.Job) (*kcfg.Fence, error) {
	return d.submit(ctx, job, false)
}

// SubmitSeparate is Submit for the separate list, which the worker serves ahead of the filled list.
func (d *Device) SubmitSeparate(ctx context.Context, job kcfg.Job) (*kcfg.Fence, error) {
	return d.submit(ctx, job, true)
}

func (d *Device) submit(ctx context.Context, job kcfg.Job, separate bool) (*kcfg.Fence, error) {
	buf, err := d.claim(ctx)
	if err != nil {
		return nil, err
	}

	if err := d.load(buf, job); err != nil {
		d.queue.Cancel(buf)
		metrics.RecordSubmitRejected(metrics.ReasonInvalid)
		return nil, err
	}

	// The buffer belongs to the worker once pushed.
	fence, jobID := buf.Fence(), buf.JobID()
	push := d.queue.Push
	if separate {
		push = d.queue.PushSeparate
	}
	if err := push(buf); err != nil {
		if errors.Is(err, kcfg.ErrQueueTornDown) {
			metrics.RecordSubmitRejected(metrics.ReasonTornDown)
		}
		return nil, err
	}

	metrics.RecordJobSubmitted(separate)
	metrics.RecordQueueStats(d.queue.Stats())
	d.logger.V(logutil.TRACE).Info("Job submitted", "jobID", jobID, "layers", len(job.Layers),
		"separate", separate)
	return fence, nil
}

func (d *Device) load(buf *kcfg.Buffer, job kcfg.Job) error {
	if err := buf.Load(job); err != nil {
		return err
	}
	if err := buf.Validate(d.queue.MaxLayers()); err != nil {
		return err
	}
	return d.core.Profile().Check(buf)
}

// claim takes an empty buffer, polling while the pool is exhausted.
func (d *Device) claim(ctx context.Context) (*kcfg.Buffer, error) {
	if buf := d.queue.Get(); buf != nil {
		return buf, nil
	}
	if d.tornDown() {
		metrics.RecordSubmitRejected(metrics.ReasonTornDown)
		return nil, kcfg.ErrQueueTornDown
	}
	if d.cfg.RejectWhenExhausted || d.cfg.SubmitTimeout == 0 {
		metrics.RecordSubmitRejected(metrics.ReasonExhausted)
		return nil, ErrExhausted
	}

	var buf *kcfg.Buffer
	err := wait.PollUntilContextTimeout(ctx, d.cfg.SubmitPollInterval, d.cfg.SubmitTimeout, false,
		func(context.Context) (bool, error) {
			if d.tornDown() {
				return false, kcfg.ErrQueueTornDown
			}
			buf = d.queue.Get()
			return buf != nil, nil
		})
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, kcfg.ErrQueueTornDown):
		metrics.RecordSubmitRejected(metrics.ReasonTornDown)
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case wait.Interrupted(err):
		metrics.RecordSubmitRejected(metrics.ReasonExhausted)
		return nil, fmt.Errorf("%w after %v", ErrExhausted, d.cfg.SubmitTimeout)
	default:
		return nil, err
	}
}

func (d *Device) tornDown() bool {
	select {
	case <-d.queue.Done():
		return true
	default:
		return false
	}
}

// Cancel aborts the job behind f. A job still waiting is discarded at once; a running job is finished by the engine
// and its result dropped. It returns false if the job had already finished.
func (d *Device) Cancel(f *kcfg.Fence) bool {
	prev, ok := d.queue.CancelFence(f)
	if !ok {
		return false
	}
	// The worker records running jobs itself once the engine lets go of them.
	if prev != kcfg.StateInFlight {
		now := d.clock.Now()
		d.worker.Record(worker.JobRecord{
			JobID:    f.JobID(),
			Outcome:  metrics.OutcomeCancelled,
			Err:      kcfg.ErrCancelled,
			Started:  now,
			Finished: now,
		})
		metrics.RecordJobFinished(metrics.OutcomeCancelled)
		metrics.RecordQueueStats(d.queue.Stats())
	}
	return true
}

// Reset discards every waiting job and resets the engine. A job already running is left to the worker, which fails
// it when its completion never arrives.
func (d *Device) Reset() error {
	n := d.queue.InvalidateFilled()
	metrics.RecordJobsFinished(metrics.OutcomeInvalidated, n)
	metrics.RecordQueueStats(d.queue.Stats())
	if err := d.core.Reset(); err != nil {
		return fmt.Errorf("failed to reset GSP core: %w", err)
	}
	metrics.RecordEngineReset(string(d.core.Profile().Revision))
	d.logger.V(logutil.VERBOSE).Info("GSP device reset", "invalidated", n)
	return nil
}

// Ready reports whether the device is running and accepting jobs.
func (d *Device) Ready() bool { return d.running.Load() && !d.tornDown() }

// Stats returns the queue's occupancy.
func (d *Device) Stats() kcfg.Stats { return d.queue.Stats() }

// JobStatus returns the outcome of a recently finished job.
func (d *Device) JobStatus(jobID string) (worker.JobRecord, bool) { return d.worker.JobStatus(jobID) }

// Profile returns the engine's capabilities.
func (d *Device) Profile() core.Profile { return d.core.Profile() }

// Config returns the device configuration.
func (d *Device) Config() *config.Config { return d.cfg }
