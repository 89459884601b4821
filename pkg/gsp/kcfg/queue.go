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
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
)

// Stats is a consistent snapshot of a queue's occupancy.
// Filled + Separate + Empty + Claimed + InFlight always equals PoolSize while the queue is live.
type Stats struct {
	PoolSize int
	Filled   int
	Separate int
	Empty    int
	Claimed  int
	InFlight int
	Worker   string
	TornDown bool
}

// Queue is the compute-config queue. See the package documentation for the lifecycle and the lock order.
type Queue struct {
	// Filled side.
	filledMu sync.Mutex
	filled   *list.List
	separate *list.List
	worker   string
	// wake holds at most one pending wake-up for Acquire.
	wake chan struct{}

	// Empty side.
	emptyMu sync.Mutex
	empty   *list.List

	// tornDown is written with both locks held and may be read with either.
	tornDown bool
	done     chan struct{}
	once     sync.Once

	claimed  atomic.Int64
	inFlight atomic.Int64

	pool      []*Buffer
	maxLayers int
	logger    logr.Logger
}

// NewQueue allocates a queue and its fixed pool of poolSize buffers, each able to hold maxLayers layers. All buffers
// start on the empty list.
func NewQueue(poolSize, maxLayers int, logger logr.Logger) (*Queue, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, but got %d", poolSize)
	}
	if maxLayers <= 0 {
		return nil, fmt.Errorf("max layers must be positive, but got %d", maxLayers)
	}
	q := &Queue{
		filled:    list.New(),
		separate:  list.New(),
		empty:     list.New(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		pool:      make([]*Buffer, poolSize),
		maxLayers: maxLayers,
		logger:    logger.WithName("kcfg-queue").WithValues("poolSize", poolSize),
	}
	for i := range q.pool {
		b := newBuffer(q, i, maxLayers)
		b.elem = q.empty.PushBack(b)
		b.home = q.empty
		q.pool[i] = b
	}
	return q, nil
}

// PoolSize returns the number of buffers allocated to the queue.
func (q *Queue) PoolSize() int { return len(q.pool) }

// MaxLayers returns the per-buffer layer bound.
func (q *Queue) MaxLayers() int { return q.maxLayers }

// Attach records the worker serving this queue. Attaching the same name twice is allowed.
func (q *Queue) Attach(worker string) error {
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	if q.tornDown {
		return ErrQueueTornDown
	}
	if q.worker != "" && q.worker != worker {
		return fmt.Errorf("%w: %q", ErrWorkerAttached, q.worker)
	}
	q.worker = worker
	return nil
}

// Detach clears the worker back-reference.
func (q *Queue) Detach() {
	q.filledMu.Lock()
	q.worker = ""
	q.filledMu.Unlock()
}

// Get claims a buffer from the empty list for a new job. It returns nil if the queue is exhausted or torn down.
func (q *Queue) Get() *Buffer {
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()

	if q.tornDown {
		return nil
	}
	e := q.empty.Front()
	if e == nil {
		return nil
	}
	b := q.empty.Remove(e).(*Buffer)
	b.elem, b.home = nil, nil
	b.reset()
	b.state.Store(int32(StateClaimed))
	q.claimed.Add(1)
	return b
}

// Push appends a claimed buffer to the tail of the filled list and wakes the worker.
func (q *Queue) Push(b *Buffer) error {
	return q.push(b, false)
}

// PushSeparate appends a claimed buffer to the separate list. Buffers on the separate list are handed to the worker
// before any buffer on the filled list.
func (q *Queue) PushSeparate(b *Buffer) error {
	return q.push(b, true)
}

func (q *Queue) push(b *Buffer, separate bool) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBufferState)
	}
	if b.owner != q {
		return ErrBufferNotOwned
	}

	q.filledMu.Lock()
	defer q.filledMu.Unlock()

	if q.tornDown {
		q.releaseClaimed(b)
		return ErrQueueTornDown
	}
	if !b.state.CompareAndSwap(int32(StateClaimed), int32(StateFilled)) {
		return fmt.Errorf("%w: push of buffer %d in state %s", ErrInvalidBufferState, b.index, b.State())
	}
	q.claimed.Add(-1)
	b.valid = true
	target := q.filled
	if separate {
		target = q.separate
	}
	b.elem = target.PushBack(b)
	b.home = target
	q.notify()

	q.logger.V(logutil.TRACE).Info("Buffer pushed", "index", b.index, "jobID", b.jobID, "separate", separate)
	return nil
}

// notify leaves a wake-up for Acquire without blocking. The caller must hold the filled-side lock.
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pull removes and returns the head of the separate list, or failing that the filled list. It returns nil if
// nothing is filled. The returned buffer is IN_FLIGHT and must be given back with Put.
func (q *Queue) Pull() *Buffer {
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	return q.pullLocked()
}

func (q *Queue) pullLocked() *Buffer {
	e := q.separate.Front()
	if e == nil {
		e = q.filled.Front()
	}
	if e == nil {
		return nil
	}
	b := e.Value.(*Buffer)
	b.home.Remove(e)
	b.elem, b.home = nil, nil
	b.state.Store(int32(StateInFlight))
	q.inFlight.Add(1)
	q.logger.V(logutil.TRACE).Info("Buffer pulled", "index", b.index, "jobID", b.jobID)
	return b
}

// Acquire is the blocking form of Pull for the worker. It waits until a buffer is filled, the queue is torn down
// (ErrQueueTornDown) or ctx ends (ctx.Err()).
func (q *Queue) Acquire(ctx context.Context) (*Buffer, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrQueueTornDown
		default:
		}

		q.filledMu.Lock()
		b := q.pullLocked()
		if b != nil && (q.filled.Len() > 0 || q.separate.Len() > 0) {
			// Pass the wake-up on in case another goroutine is waiting.
			q.notify()
		}
		q.filledMu.Unlock()
		if b != nil {
			return b, nil
		}

		select {
		case <-q.wake:
		case <-q.done:
			return nil, ErrQueueTornDown
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns an IN_FLIGHT buffer to the tail of the empty list. If the worker did not complete the job, its fence
// is signalled with ErrIncomplete.
func (q *Queue) Put(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBufferState)
	}
	if b.owner != q {
		return ErrBufferNotOwned
	}

	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()

	if !b.state.CompareAndSwap(int32(StateInFlight), int32(StateEmpty)) {
		return fmt.Errorf("%w: put of buffer %d in state %s", ErrInvalidBufferState, b.index, b.State())
	}
	q.inFlight.Add(-1)
	b.valid = false
	b.Complete(ErrIncomplete)
	if q.tornDown {
		b.state.Store(int32(StateReleased))
		return ErrQueueTornDown
	}
	b.elem = q.empty.PushBack(b)
	b.home = q.empty
	q.logger.V(logutil.TRACE).Info("Buffer returned", "index", b.index, "jobID", b.jobID)
	return nil
}

// IsExhausted reports whether the empty list has no buffers left.
func (q *Queue) IsExhausted() bool {
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()
	return q.empty.Len() == 0
}

// IsFilled reports whether a buffer is waiting for the worker.
func (q *Queue) IsFilled() bool {
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	return q.filled.Len() > 0 || q.separate.Len() > 0
}

// InvalidateFilled moves every waiting buffer back to the empty list without handing it to the worker. Each
// discarded job's fence is signalled with ErrInvalidated. It returns the number of buffers discarded.
func (q *Queue) InvalidateFilled() int {
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()

	if q.tornDown {
		return 0
	}
	n := q.recycleLocked(q.separate, ErrInvalidated) + q.recycleLocked(q.filled, ErrInvalidated)
	if n > 0 {
		q.logger.V(logutil.DEFAULT).Info("Invalidated filled buffers", "count", n)
	}
	return n
}

// recycleLocked moves every buffer of l to the empty list. The caller must hold both locks.
func (q *Queue) recycleLocked(l *list.List, reason error) int {
	n := 0
	for e := l.Front(); e != nil; {
		next := e.Next()
		b := l.Remove(e).(*Buffer)
		b.state.Store(int32(StateEmpty))
		b.valid = false
		b.Complete(reason)
		b.elem = q.empty.PushBack(b)
		b.home = q.empty
		n++
		e = next
	}
	return n
}

// Cancel aborts the job carried by b. A FILLED or CLAIMED buffer goes straight back to the empty list. An IN_FLIGHT
// buffer is only marked; the worker keeps it until Put and must drop its result. The job's fence is signalled with
// ErrCancelled. Cancel returns false, doing nothing, if the buffer is empty, already cancelled, or not owned by q.
//
// b names a buffer, not a job: once Get has handed the buffer out again, Cancel(b) aborts the new job. Callers that
// may race with reuse should hold the job's fence and use CancelFence.
func (q *Queue) Cancel(b *Buffer) bool {
	if b == nil || b.owner != q {
		return false
	}
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()
	return q.cancelLocked(b)
}

// CancelFence cancels the job a fence belongs to and reports the state the job was cancelled from. It is a no-op
// returning false if the fence's buffer has since been recycled for a different job.
func (q *Queue) CancelFence(f *Fence) (State, bool) {
	if f == nil || f.buf == nil || f.buf.owner != q {
		return StateEmpty, false
	}
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()
	if f.buf.jobID != f.jobID {
		return StateEmpty, false
	}
	prev := f.buf.State()
	return prev, q.cancelLocked(f.buf)
}

func (q *Queue) cancelLocked(b *Buffer) bool {
	if q.tornDown {
		q.releaseClaimed(b)
		return false
	}
	switch b.State() {
	case StateFilled:
		b.home.Remove(b.elem)
	case StateClaimed:
		q.claimed.Add(-1)
	case StateInFlight:
		if b.cancelled.Swap(true) {
			return false
		}
		b.Complete(ErrCancelled)
		q.logger.V(logutil.VERBOSE).Info("In-flight buffer marked cancelled", "index", b.index, "jobID", b.jobID)
		return true
	default:
		return false
	}
	b.cancelled.Store(true)
	b.valid = false
	b.Complete(ErrCancelled)
	b.state.Store(int32(StateEmpty))
	b.elem = q.empty.PushBack(b)
	b.home = q.empty
	q.logger.V(logutil.VERBOSE).Info("Buffer cancelled", "index", b.index, "jobID", b.jobID)
	return true
}

// releaseClaimed drops a buffer that was claimed before teardown and so has no list to return to.
func (q *Queue) releaseClaimed(b *Buffer) {
	if !b.state.CompareAndSwap(int32(StateClaimed), int32(StateReleased)) {
		return
	}
	q.claimed.Add(-1)
	b.valid = false
	b.Complete(ErrQueueTornDown)
}

// Stats returns a consistent occupancy snapshot.
func (q *Queue) Stats() Stats {
	q.filledMu.Lock()
	defer q.filledMu.Unlock()
	q.emptyMu.Lock()
	defer q.emptyMu.Unlock()
	return Stats{
		PoolSize: len(q.pool),
		Filled:   q.filled.Len(),
		Separate: q.separate.Len(),
		Empty:    q.empty.Len(),
		Claimed:  int(q.claimed.Load()),
		InFlight: int(q.inFlight.Load()),
		Worker:   q.worker,
		TornDown: q.tornDown,
	}
}

// Teardown releases the queue. Goroutines blocked in Acquire return ErrQueueTornDown, waiting jobs have their fences
// signalled with ErrQueueTornDown, and every later Get, Push or Put fails. A buffer still claimed by a submitter is
// released by its failing Push or Cancel. It returns the number of waiting jobs that
// were discarded. Calling Teardown again is a no-op returning 0.
func (q *Queue) Teardown() int {
	discarded := 0
	q.once.Do(func() {
		q.filledMu.Lock()
		defer q.filledMu.Unlock()
		q.emptyMu.Lock()
		defer q.emptyMu.Unlock()

		q.tornDown = true
		close(q.done)
		for _, l := range []*list.List{q.separate, q.filled} {
			for e := l.Front(); e != nil; e = e.Next() {
				b := e.Value.(*Buffer)
				b.valid = false
				b.Complete(ErrQueueTornDown)
				b.state.Store(int32(StateReleased))
				b.elem, b.home = nil, nil
				discarded++
			}
			l.Init()
		}
		for e := q.empty.Front(); e != nil; e = e.Next() {
			b := e.Value.(*Buffer)
			b.state.Store(int32(StateReleased))
			b.elem, b.home = nil, nil
		}
		q.empty.Init()
		q.worker = ""
		q.logger.V(logutil.DEFAULT).Info("Queue torn down", "discarded", discarded,
			"inFlight", q.inFlight.Load(), "claimed", q.claimed.Load())
	})
	return discarded
}

// Done returns a channel that is closed by Teardown.
func (q *Queue) Done() <-chan struct{} { return q.done }
