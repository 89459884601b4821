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

import (
	"context"
	"sync"
)

// Fence is the completion signal of one job. A new fence is created every time a buffer is claimed, so holding a
// fence stays meaningful after the buffer has been recycled for another job.
type Fence struct {
	jobID string
	buf   *Buffer

	done chan struct{}
	// err is written once, before done is closed.
	err  error
	once sync.Once
}

func newFence(buf *Buffer, jobID string) *Fence {
	return &Fence{
		jobID: jobID,
		buf:   buf,
		done:  make(chan struct{}),
	}
}

// JobID returns the job the fence belongs to.
func (f *Fence) JobID() string { return f.jobID }

// Done returns a channel that is closed once the job has finished, failed or been discarded.
func (f *Fence) Done() <-chan struct{} { return f.done }

// Err returns the job's outcome. It is nil both for a successful job and for a job that has not finished yet; use
// Done or Signaled to tell them apart.
func (f *Fence) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Signaled reports whether the fence has been signalled.
func (f *Fence) Signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence is signalled or ctx ends.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fence) signal(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
