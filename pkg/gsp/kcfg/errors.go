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

package kcfg

import "errors"

// --- Caller Contract Violations ---

// These errors indicate corrupted buffer ownership. Callers must treat them as fatal for the job involved and must
// not retry.
var (
	// ErrQueueTornDown indicates an operation on a queue after Teardown.
	ErrQueueTornDown = errors.New("compute-config queue torn down")

	// ErrInvalidBufferState indicates a buffer was pushed or put from the wrong state, e.g. a double push.
	ErrInvalidBufferState = errors.New("invalid buffer state transition")

	// ErrBufferNotOwned indicates a buffer was handed to a queue that did not allocate it.
	ErrBufferNotOwned = errors.New("buffer not owned by this queue")

	// ErrWorkerAttached indicates a second worker tried to attach to a queue.
	ErrWorkerAttached = errors.New("another worker is already attached")
)

// --- Job Outcomes ---

// A job's fence carries one of these when the job did not run to completion.
var (
	// ErrCancelled indicates the submitter cancelled the job.
	ErrCancelled = errors.New("job cancelled")

	// ErrInvalidated indicates the job was discarded by InvalidateFilled on a reset path.
	ErrInvalidated = errors.New("job invalidated before execution")

	// ErrIncomplete indicates the buffer came back to the queue without its fence being completed.
	ErrIncomplete = errors.New("buffer returned without completion")
)

// --- Validation Errors ---

var (
	// ErrNoLayers indicates a buffer with an empty layer list.
	ErrNoLayers = errors.New("no layers configured")

	// ErrTooManyLayers indicates a layer count above the configured bound.
	ErrTooManyLayers = errors.New("too many layers")

	// ErrInvalidLayer indicates a layer with inconsistent geometry or parameters.
	ErrInvalidLayer = errors.New("invalid layer")
)
