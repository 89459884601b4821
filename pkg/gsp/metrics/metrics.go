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

// Package metrics exposes Prometheus metrics for the GSP compute-config queue and its worker.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/util/metrics"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
)

const component = "gsp"

// Job outcomes used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
	OutcomeTimeout     = "timeout"
	OutcomeInvalidated = "invalidated"
)

// Submit rejection reasons used as the "reason" label.
const (
	ReasonExhausted = "exhausted"
	ReasonInvalid   = "invalid"
	ReasonTornDown  = "torn_down"
)

var (
	queueBuffers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: component,
			Name:      "queue_buffers",
			Help:      metricsutil.HelpMsgWithStability("Number of compute-config buffers in each lifecycle state.", compbasemetrics.ALPHA),
		},
		[]string{"state"},
	)
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "jobs_submitted_total",
			Help:      metricsutil.HelpMsgWithStability("Count of jobs pushed onto the compute-config queue.", compbasemetrics.ALPHA),
		},
		[]string{"list"},
	)
	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "jobs_finished_total",
			Help:      metricsutil.HelpMsgWithStability("Count of jobs that left the queue, by outcome.", compbasemetrics.ALPHA),
		},
		[]string{"outcome"},
	)
	submitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "submit_rejected_total",
			Help:      metricsutil.HelpMsgWithStability("Count of submissions rejected before reaching the queue.", compbasemetrics.ALPHA),
		},
		[]string{"reason"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "job_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Time from trigger to completion interrupt of executed jobs.", compbasemetrics.ALPHA),
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"revision"},
	)
	engineResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "engine_resets_total",
			Help:      metricsutil.HelpMsgWithStability("Count of engine resets after timeouts or on request.", compbasemetrics.ALPHA),
		},
		[]string{"revision"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(queueBuffers)
		metrics.Registry.MustRegister(jobsSubmitted)
		metrics.Registry.MustRegister(jobsFinished)
		metrics.Registry.MustRegister(submitRejected)
		metrics.Registry.MustRegister(jobDuration)
		metrics.Registry.MustRegister(engineResets)
	})
}

// Reset clears all metric values. It is meant for tests.
func Reset() {
	queueBuffers.Reset()
	jobsSubmitted.Reset()
	jobsFinished.Reset()
	submitRejected.Reset()
	jobDuration.Reset()
	engineResets.Reset()
}

// RecordQueueStats publishes an occupancy snapshot.
func RecordQueueStats(s kcfg.Stats) {
	queueBuffers.WithLabelValues("filled").Set(float64(s.Filled))
	queueBuffers.WithLabelValues("separate").Set(float64(s.Separate))
	queueBuffers.WithLabelValues("empty").Set(float64(s.Empty))
	queueBuffers.WithLabelValues("claimed").Set(float64(s.Claimed))
	queueBuffers.WithLabelValues("in_flight").Set(float64(s.InFlight))
}

// RecordJobSubmitted counts a pushed job. separate selects the out-of-band list label.
func RecordJobSubmitted(separate bool) {
	list := "filled"
	if separate {
		list = "separate"
	}
	jobsSubmitted.WithLabelValues(list).Inc()
}

// RecordJobFinished counts a job by outcome.
func RecordJobFinished(outcome string) {
	jobsFinished.WithLabelValues(outcome).Inc()
}

// RecordJobsFinished counts n jobs with the same outcome.
func RecordJobsFinished(outcome string, n int) {
	if n > 0 {
		jobsFinished.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordSubmitRejected counts a submission that never reached the queue.
func RecordSubmitRejected(reason string) {
	submitRejected.WithLabelValues(reason).Inc()
}

// RecordJobDuration observes the execution time of a job.
func RecordJobDuration(revision string, d time.Duration) {
	jobDuration.WithLabelValues(revision).Observe(d.Seconds())
}

// RecordEngineReset counts an engine reset.
func RecordEngineReset(revision string) {
	engineResets.WithLabelValues(revision).Inc()
}
