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

// Package worker drives a GSP engine from a compute-config queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/metrics"
)

const (
	defaultJobTimeout  = 500 * time.Millisecond
	defaultHistorySize = 256

	tracerName = "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/worker"
)

var (
	// ErrHardwareTimeout is the outcome of a job whose completion interrupt never arrived.
	ErrHardwareTimeout = errors.New("GSP completion interrupt timed out")

	// ErrTriggerFailed is the outcome of a job the engine refused to start.
	ErrTriggerFailed = errors.New("GSP trigger failed")

	// ErrInvalidJob is the outcome of a job that failed validation.
	ErrInvalidJob = errors.New("invalid GSP job")
)

// JobRecord is the final state of an executed or discarded job.
type JobRecord struct {
	JobID   string
	Index   int
	Outcome string
	Err     error

	// Started is when the worker took the job, Triggered when the engine accepted it. Triggered is zero for jobs
	// that never reached the engine.
	Started   time.Time
	Triggered time.Time
	Finished  time.Time

	// Registers is the engine's register state at the moment a job timed out.
	Registers []core.Register
}

// Option configures a Worker.
type Option func(*Worker)

// WithJobTimeout sets how long to wait for a completion interrupt.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.jobTimeout = d
	}
}

// WithClock sets the clock used for job timing and timeouts.
func WithClock(c clock.Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithHistorySize sets how many finished jobs JobStatus remembers.
func WithHistorySize(n int) Option {
	return func(w *Worker) {
		w.historySize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithTracerProvider sets the provider of the per-job spans. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) {
		w.tracer = tp.Tracer(tracerName)
	}
}

// Worker is the single consumer of a compute-config queue. It owns every buffer between Acquire and Put.
//
// A job cancelled while it executes is not waited for specially: the engine finishes it, its result is dropped, and
// the buffer goes back to the queue as usual.
type Worker struct {
	name        string
	queue       *kcfg.Queue
	core        core.Core
	clock       clock.Clock
	jobTimeout  time.Duration
	historySize int
	history     *lru.Cache[string, JobRecord]
	tracer      trace.Tracer
	logger      logr.Logger
}

// New creates a Worker for q and c. Run must be called to start processing.
func New(name string, q *kcfg.Queue, c core.Core, opts ...Option) (*Worker, error) {
	w := &Worker{
		name:        name,
		queue:       q,
		core:        c,
		clock:       clock.RealClock{},
		jobTimeout:  defaultJobTimeout,
		historySize: defaultHistorySize,
		tracer:      otel.Tracer(tracerName),
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.jobTimeout <= 0 {
		return nil, fmt.Errorf("job timeout must be positive, but got %v", w.jobTimeout)
	}
	history, err := lru.New[string, JobRecord](w.historySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create job history: %w", err)
	}
	w.history = history
	w.logger = w.logger.WithName("gsp-worker").WithValues("worker", name, "core", c.Name())
	return w, nil
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// JobStatus returns the record of a finished job, if it is still in the history.
func (w *Worker) JobStatus(jobID string) (JobRecord, bool) {
	return w.history.Get(jobID)
}

// Record stores the outcome of a job that never reached the worker, e.g. one cancelled or invalidated while queued.
func (w *Worker) Record(rec JobRecord) {
	w.history.Add(rec.JobID, rec)
}

// Run attaches to the queue and processes buffers until the queue is torn down or ctx ends. Both are a clean stop
// and return nil.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.Attach(w.name); err != nil {
		return err
	}
	defer w.queue.Detach()

	w.logger.V(logutil.DEFAULT).Info("GSP worker run loop starting.")
	defer w.logger.V(logutil.DEFAULT).Info("GSP worker run loop stopped.")

	for {
		buf, err := w.queue.Acquire(ctx)
		if err != nil {
			if errors.Is(err, kcfg.ErrQueueTornDown) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.process(ctx, buf)
	}
}

// process executes one buffer and always hands it back to the queue.
func (w *Worker) process(ctx context.Context, buf *kcfg.Buffer) {
	rec := JobRecord{JobID: buf.JobID(), Index: buf.Index(), Started: w.clock.Now()}
	logger := w.logger.WithValues("jobID", rec.JobID, "index", rec.Index)
	ctx, span := w.tracer.Start(ctx, "gsp.job", trace.WithAttributes(
		attribute.String("gsp.job_id", rec.JobID),
		attribute.Int("gsp.buffer_index", rec.Index),
		attribute.Int("gsp.layers", len(buf.Layers)),
		attribute.String("gsp.core", w.core.Name()),
	))
	defer func() {
		rec.Finished = w.clock.Now()
		w.history.Add(rec.JobID, rec)
		metrics.RecordJobFinished(rec.Outcome)
		span.SetAttributes(attribute.String("gsp.outcome", rec.Outcome))
		if rec.Err != nil && rec.Outcome != metrics.OutcomeCancelled {
			span.RecordError(rec.Err)
			span.SetStatus(codes.Error, rec.Outcome)
		}
		span.End()
		w.release(buf, logger)
	}()

	if buf.Cancelled() {
		logger.V(logutil.VERBOSE).Info("Skipping job cancelled before trigger")
		rec.Outcome, rec.Err = metrics.OutcomeCancelled, kcfg.ErrCancelled
		return
	}

	if err := buf.Validate(w.queue.MaxLayers()); err != nil {
		rec.Outcome, rec.Err = metrics.OutcomeFailed, fmt.Errorf("%w: %w", ErrInvalidJob, err)
		logger.V(logutil.DEFAULT).Info("Rejecting invalid job", "err", err)
		buf.Complete(rec.Err)
		return
	}

	if err := w.core.Trigger(buf); err != nil {
		rec.Outcome, rec.Err = metrics.OutcomeFailed, fmt.Errorf("%w: %w", ErrTriggerFailed, err)
		logger.Error(err, "Failed to trigger GSP job")
		if errors.Is(err, core.ErrBusy) {
			w.resetCore(logger)
		}
		buf.Complete(rec.Err)
		return
	}
	rec.Triggered = w.clock.Now()

	err := w.awaitCompletion(ctx, rec.JobID, logger)
	switch {
	case err == nil && buf.Cancelled():
		logger.V(logutil.VERBOSE).Info("Dropping result of job cancelled in flight")
		rec.Outcome, rec.Err = metrics.OutcomeCancelled, kcfg.ErrCancelled
	case err == nil:
		rec.Outcome = metrics.OutcomeSuccess
		metrics.RecordJobDuration(string(w.core.Profile().Revision), w.clock.Since(rec.Triggered))
		logger.V(logutil.TRACE).Info("Job completed")
		buf.Complete(nil)
	case errors.Is(err, ErrHardwareTimeout):
		rec.Outcome, rec.Err = metrics.OutcomeTimeout, err
		rec.Registers = w.core.Dump()
		logger.Error(err, "GSP job timed out, resetting engine")
		logger.V(logutil.DEBUG).Info("Engine registers at timeout", "registers", rec.Registers)
		w.resetCore(logger)
		buf.Complete(err)
	default:
		rec.Outcome, rec.Err = metrics.OutcomeFailed, err
		logger.V(logutil.DEFAULT).Info("Abandoning job", "err", err)
		w.resetCore(logger)
		buf.Complete(err)
	}
}

// awaitCompletion waits for the completion interrupt of jobID. Interrupts for other jobs are stale leftovers of
// jobs abandoned earlier and are discarded.
func (w *Worker) awaitCompletion(ctx context.Context, jobID string, logger logr.Logger) error {
	timer := w.clock.NewTimer(w.jobTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-w.core.Interrupts():
			if ev.JobID != jobID {
				logger.V(logutil.DEBUG).Info("Discarding stale interrupt", "staleJobID", ev.JobID)
				continue
			}
			return ev.Err
		case <-timer.C():
			return fmt.Errorf("%w after %v", ErrHardwareTimeout, w.jobTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) resetCore(logger logr.Logger) {
	if err := w.core.Reset(); err != nil {
		logger.Error(err, "Failed to reset GSP engine")
		return
	}
	metrics.RecordEngineReset(string(w.core.Profile().Revision))
}

func (w *Worker) release(buf *kcfg.Buffer, logger logr.Logger) {
	if err := w.queue.Put(buf); err != nil {
		if errors.Is(err, kcfg.ErrQueueTornDown) {
			logger.V(logutil.DEBUG).Info("Queue torn down while job was in flight")
			return
		}
		logger.Error(err, "Failed to return buffer to queue")
		return
	}
	metrics.RecordQueueStats(w.queue.Stats())
}
