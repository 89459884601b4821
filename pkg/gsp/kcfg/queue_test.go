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
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Harness ---

type queueTestHarness struct {
	t *testing.T
	q *Queue
}

func newQueueHarness(t *testing.T, poolSize int) *queueTestHarness {
	t.Helper()
	q, err := NewQueue(poolSize, 4, testr.New(t))
	require.NoError(t, err, "Test setup: NewQueue must succeed for a valid pool size")
	return &queueTestHarness{t: t, q: q}
}

// fill claims and pushes n buffers, returning them in push order.
func (h *queueTestHarness) fill(n int) []*Buffer {
	h.t.Helper()
	bufs := make([]*Buffer, 0, n)
	for i := 0; i < n; i++ {
		b := h.q.Get()
		require.NotNil(h.t, b, "Harness setup: Get must return a buffer while the pool is not exhausted")
		require.NoError(h.t, h.q.Push(b), "Harness setup: Push of a claimed buffer must succeed")
		bufs = append(bufs, b)
	}
	return bufs
}

func (h *queueTestHarness) assertInvariant() {
	h.t.Helper()
	s := h.q.Stats()
	assert.Equal(h.t, s.PoolSize, s.Filled+s.Separate+s.Empty+s.Claimed+s.InFlight,
		"Every buffer must be accounted for exactly once, stats: %+v", s)
}

// --- Unit Tests ---

func TestNewQueue(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		poolSize  int
		maxLayers int
		expectErr bool
	}{
		{name: "valid", poolSize: 3, maxLayers: 2},
		{name: "zero pool", poolSize: 0, maxLayers: 2, expectErr: true},
		{name: "negative layers", poolSize: 2, maxLayers: -1, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := NewQueue(tc.poolSize, tc.maxLayers, logr.Discard())
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := Stats{PoolSize: tc.poolSize, Empty: tc.poolSize}
			if diff := cmp.Diff(want, q.Stats()); diff != "" {
				t.Errorf("Unexpected initial stats (-want +got):\n%s", diff)
			}
			assert.False(t, q.IsExhausted(), "A new queue must not be exhausted")
			assert.False(t, q.IsFilled(), "A new queue must not have filled buffers")
		})
	}
}

func TestQueue_PushThenPullReturnsSameBuffer(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 2)

	b := h.q.Get()
	require.NotNil(t, b)
	assert.Equal(t, StateClaimed, b.State())
	assert.NotEmpty(t, b.JobID(), "A claimed buffer must carry a job ID")

	require.NoError(t, h.q.Push(b))
	assert.True(t, h.q.IsFilled())
	assert.True(t, b.Valid(), "A pushed buffer must be valid")

	got := h.q.Pull()
	assert.Same(t, b, got, "Pull after Push on an otherwise empty queue must return the pushed buffer")
	assert.Equal(t, StateInFlight, got.State())
	h.assertInvariant()

	assert.Nil(t, h.q.Pull(), "Pull on an unfilled queue must return nil")
}

func TestQueue_FIFOOrder(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 8)
	pushed := h.fill(8)
	assert.True(t, h.q.IsExhausted(), "Queue must be exhausted once every buffer is filled")

	for i, want := range pushed {
		got := h.q.Pull()
		require.NotNil(t, got, "Pull %d must return a buffer", i)
		assert.Equal(t, want.JobID(), got.JobID(), "Buffers must be pulled in push order (position %d)", i)
		h.assertInvariant()
	}
}

func TestQueue_SeparateListServedFirst(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 3)
	normal := h.fill(2)

	oob := h.q.Get()
	require.NotNil(t, oob)
	require.NoError(t, h.q.PushSeparate(oob))
	assert.Equal(t, 1, h.q.Stats().Separate)

	assert.Same(t, oob, h.q.Pull(), "The separate list must be drained before the filled list")
	assert.Same(t, normal[0], h.q.Pull())
	assert.Same(t, normal[1], h.q.Pull())
}

func TestQueue_GetWhenExhausted(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 1)
	require.NotNil(t, h.q.Get())
	assert.True(t, h.q.IsExhausted())
	assert.Nil(t, h.q.Get(), "Get on an exhausted queue must return nil")
	h.assertInvariant()
}

func TestQueue_PushContractViolations(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		setup       func(h *queueTestHarness) *Buffer
		expectErrIs error
	}{
		{
			name: "double push",
			setup: func(h *queueTestHarness) *Buffer {
				return h.fill(1)[0]
			},
			expectErrIs: ErrInvalidBufferState,
		},
		{
			name: "push of in-flight buffer",
			setup: func(h *queueTestHarness) *Buffer {
				h.fill(1)
				return h.q.Pull()
			},
			expectErrIs: ErrInvalidBufferState,
		},
		{
			name: "push of unclaimed buffer",
			setup: func(h *queueTestHarness) *Buffer {
				return h.q.pool[0]
			},
			expectErrIs: ErrInvalidBufferState,
		},
		{
			name: "push of foreign buffer",
			setup: func(h *queueTestHarness) *Buffer {
				other, err := NewQueue(1, 1, logr.Discard())
				require.NoError(h.t, err)
				return other.Get()
			},
			expectErrIs: ErrBufferNotOwned,
		},
		{
			name: "push after teardown",
			setup: func(h *queueTestHarness) *Buffer {
				b := h.q.Get()
				h.q.Teardown()
				return b
			},
			expectErrIs: ErrQueueTornDown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newQueueHarness(t, 2)
			b := tc.setup(h)
			err := h.q.Push(b)
			assert.ErrorIs(t, err, tc.expectErrIs)
		})
	}
}

func TestQueue_Put(t *testing.T) {
	t.Parallel()

	t.Run("returns buffer to empty list", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		h.fill(1)
		b := h.q.Pull()
		b.Complete(nil)
		require.NoError(t, h.q.Put(b))
		assert.Equal(t, StateEmpty, b.State())
		assert.False(t, b.Valid())
		assert.False(t, h.q.IsExhausted())
		require.NoError(t, b.Fence().Err(), "Put must not overwrite a completed fence")
		h.assertInvariant()
	})

	t.Run("signals incomplete fence", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		h.fill(1)
		b := h.q.Pull()
		f := b.Fence()
		require.NoError(t, h.q.Put(b))
		assert.True(t, f.Signaled())
		assert.ErrorIs(t, f.Err(), ErrIncomplete)
	})

	t.Run("rejects double put", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		h.fill(1)
		b := h.q.Pull()
		require.NoError(t, h.q.Put(b))
		assert.ErrorIs(t, h.q.Put(b), ErrInvalidBufferState)
		h.assertInvariant()
	})

	t.Run("after teardown", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		h.fill(1)
		b := h.q.Pull()
		h.q.Teardown()
		assert.ErrorIs(t, h.q.Put(b), ErrQueueTornDown)
		assert.Equal(t, StateReleased, b.State())
		assert.Zero(t, h.q.Stats().InFlight)
	})
}

func TestQueue_InvalidateFilled(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 5)
	bufs := h.fill(3)
	oob := h.q.Get()
	require.NoError(t, h.q.PushSeparate(oob))
	before := h.q.Stats()

	n := h.q.InvalidateFilled()

	assert.Equal(t, 4, n, "Every filled and separate buffer must be discarded")
	after := h.q.Stats()
	assert.Zero(t, after.Filled)
	assert.Zero(t, after.Separate)
	assert.Equal(t, before.Empty+4, after.Empty)
	assert.Nil(t, h.q.Pull(), "No discarded buffer may be delivered to the worker")
	for _, b := range append(bufs, oob) {
		assert.Equal(t, StateEmpty, b.State())
		assert.ErrorIs(t, b.Fence().Err(), ErrInvalidated)
	}
	h.assertInvariant()
	assert.Zero(t, h.q.InvalidateFilled(), "Invalidating an unfilled queue must discard nothing")
}

func TestQueue_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("filled buffer is removed exactly once", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 3)
		bufs := h.fill(3)
		f := bufs[1].Fence()

		assert.True(t, h.q.Cancel(bufs[1]), "First cancel of a filled buffer must succeed")
		assert.False(t, h.q.Cancel(bufs[1]), "Second cancel must be a no-op")
		assert.True(t, bufs[1].Cancelled())
		assert.Equal(t, StateEmpty, bufs[1].State())
		assert.ErrorIs(t, f.Err(), ErrCancelled)

		s := h.q.Stats()
		assert.Equal(t, 2, s.Filled)
		assert.Equal(t, 1, s.Empty)
		assert.Same(t, bufs[0], h.q.Pull())
		assert.Same(t, bufs[2], h.q.Pull(), "The cancelled buffer must not be delivered")
		h.assertInvariant()
	})

	t.Run("claimed buffer returns to empty", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		b := h.q.Get()
		assert.True(t, h.q.Cancel(b))
		assert.False(t, h.q.IsExhausted())
		assert.Zero(t, h.q.Stats().Claimed)
		assert.ErrorIs(t, h.q.Push(b), ErrInvalidBufferState, "A cancelled claim cannot be pushed")
		h.assertInvariant()
	})

	t.Run("in-flight buffer is marked only", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		h.fill(1)
		b := h.q.Pull()
		assert.True(t, h.q.Cancel(b))
		assert.False(t, h.q.Cancel(b), "Cancelling an already cancelled in-flight buffer must be a no-op")
		assert.Equal(t, StateInFlight, b.State(), "The worker keeps ownership until Put")
		assert.True(t, b.Cancelled())
		assert.ErrorIs(t, b.Fence().Err(), ErrCancelled)
		b.Complete(nil)
		assert.ErrorIs(t, b.Fence().Err(), ErrCancelled, "Completion after cancel must not change the outcome")
		require.NoError(t, h.q.Put(b))
		h.assertInvariant()
	})

	t.Run("empty or foreign buffer is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		assert.False(t, h.q.Cancel(h.q.pool[0]))
		assert.False(t, h.q.Cancel(nil))
		other, err := NewQueue(1, 1, logr.Discard())
		require.NoError(t, err)
		assert.False(t, h.q.Cancel(other.Get()))
	})

	t.Run("stale fence does not cancel a recycled buffer", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		b := h.fill(1)[0]
		stale := b.Fence()
		pulled := h.q.Pull()
		pulled.Complete(nil)
		require.NoError(t, h.q.Put(pulled))

		reused := h.q.Get()
		require.Same(t, b, reused, "Single-buffer pool must recycle the same buffer")
		require.NoError(t, h.q.Push(reused))

		_, ok := h.q.CancelFence(stale)
		assert.False(t, ok, "A fence from a finished job must not cancel the next job")
		prev, ok := h.q.CancelFence(reused.Fence())
		assert.True(t, ok)
		assert.Equal(t, StateFilled, prev)
		h.assertInvariant()
	})

	t.Run("buffer cancel after reuse aborts the new job", func(t *testing.T) {
		t.Parallel()
		h := newQueueHarness(t, 1)
		b := h.fill(1)[0]
		first := b.Fence()
		require.True(t, h.q.Cancel(b))
		require.False(t, h.q.Cancel(b), "Cancel is a no-op while the buffer is still empty")

		reused := h.q.Get()
		require.Same(t, b, reused, "Single-buffer pool must recycle the same buffer")
		require.NoError(t, h.q.Push(reused))
		second := reused.Fence()

		assert.True(t, h.q.Cancel(b), "Cancel by buffer must follow the buffer to its new job")
		assert.ErrorIs(t, second.Err(), ErrCancelled)
		assert.ErrorIs(t, first.Err(), ErrCancelled)
		_, ok := h.q.CancelFence(first)
		assert.False(t, ok, "Cancel by fence must stay bound to the original job")
		h.assertInvariant()
	})
}

func TestQueue_AcquireBlocksUntilPush(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 2)

	got := make(chan *Buffer, 1)
	go func() {
		b, err := h.q.Acquire(context.Background())
		assert.NoError(t, err)
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("Acquire must block while nothing is filled")
	case <-time.After(50 * time.Millisecond):
	}

	b := h.q.Get()
	require.NoError(t, h.q.Push(b))

	select {
	case acquired := <-got:
		assert.Same(t, b, acquired, "Acquire must return the buffer pushed concurrently")
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after Push")
	}
}

func TestQueue_AcquireContextCancelled(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b, err := h.q.Acquire(ctx)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_TeardownUnblocksAcquire(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 2)

	const waiters = 3
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			b, err := h.q.Acquire(context.Background())
			assert.Nil(t, b)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)

	h.q.Teardown()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrQueueTornDown)
		case <-time.After(5 * time.Second):
			t.Fatal("Teardown did not unblock Acquire")
		}
	}
}

func TestQueue_Teardown(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 4)
	bufs := h.fill(2)
	claimed := h.q.Get()
	rejected := h.q.Get()

	assert.Equal(t, 2, h.q.Teardown(), "Teardown must report the discarded filled buffers")
	assert.Zero(t, h.q.Teardown(), "A second teardown must be a no-op")

	for _, b := range bufs {
		assert.Equal(t, StateReleased, b.State())
		assert.ErrorIs(t, b.Fence().Err(), ErrQueueTornDown)
	}
	assert.Nil(t, h.q.Get())
	assert.Nil(t, h.q.Pull())
	assert.Equal(t, 2, h.q.Stats().Claimed, "Claims made before teardown stay counted until their owner acts")
	assert.ErrorIs(t, h.q.Push(claimed), ErrQueueTornDown)
	assert.Equal(t, StateReleased, claimed.State(), "A claim pushed after teardown must be released")
	assert.ErrorIs(t, claimed.Fence().Err(), ErrQueueTornDown)
	assert.False(t, h.q.Cancel(rejected), "Cancel after teardown must report false")
	assert.Equal(t, StateReleased, rejected.State(), "A claim cancelled after teardown must be released")
	assert.Zero(t, h.q.Stats().Claimed, "No claim may be left counted after teardown")
	assert.ErrorIs(t, h.q.Attach("late"), ErrQueueTornDown)
	assert.False(t, h.q.Cancel(claimed))
	assert.Zero(t, h.q.InvalidateFilled())
	assert.True(t, h.q.Stats().TornDown)

	select {
	case <-h.q.Done():
	default:
		t.Fatal("Done must be closed after Teardown")
	}
}

func TestQueue_Attach(t *testing.T) {
	t.Parallel()
	h := newQueueHarness(t, 1)
	require.NoError(t, h.q.Attach("gsp-worker-0"))
	require.NoError(t, h.q.Attach("gsp-worker-0"), "Re-attaching the same worker must succeed")
	assert.ErrorIs(t, h.q.Attach("gsp-worker-1"), ErrWorkerAttached)
	assert.Equal(t, "gsp-worker-0", h.q.Stats().Worker)
	h.q.Detach()
	require.NoError(t, h.q.Attach("gsp-worker-1"))
}

// --- Concurrency Tests ---

func TestQueue_ConcurrentHandoff(t *testing.T) {
	t.Parallel()
	const (
		poolSize   = 4
		submitters = 4
		perSubmit  = 200
	)
	h := newQueueHarness(t, poolSize)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen sync.Map
	workerDone := make(chan int)
	go func() {
		count := 0
		for {
			b, err := h.q.Acquire(ctx)
			if err != nil {
				workerDone <- count
				return
			}
			_, dup := seen.LoadOrStore(b.JobID(), struct{}{})
			assert.False(t, dup, "A job must be delivered at most once")
			if !b.Cancelled() {
				b.Complete(nil)
			}
			assert.NoError(t, h.q.Put(b))
			count++
		}
	}()

	var wg sync.WaitGroup
	var cancelled sync.Map
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSubmit; {
				b := h.q.Get()
				if b == nil {
					time.Sleep(time.Microsecond)
					continue
				}
				f := b.Fence()
				if err := h.q.Push(b); !assert.NoError(t, err) {
					return
				}
				if i%10 == s {
					if _, ok := h.q.CancelFence(f); ok {
						cancelled.Store(f.JobID(), struct{}{})
					}
				}
				if err := f.Wait(context.Background()); err != nil {
					assert.ErrorIs(t, err, ErrCancelled)
				}
				i++
			}
		}(s)
	}

	// Occupancy observations race with the hand-off on purpose.
	stop := make(chan struct{})
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		for {
			select {
			case <-stop:
				return
			default:
				h.assertInvariant()
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-observed
	cancel()
	delivered := <-workerDone

	cancelledCount := 0
	cancelled.Range(func(_, _ any) bool { cancelledCount++; return true })
	assert.LessOrEqual(t, delivered, submitters*perSubmit)
	assert.GreaterOrEqual(t, delivered+cancelledCount, submitters*perSubmit,
		"Every job must be either delivered or cancelled")
	h.assertInvariant()
	assert.Equal(t, poolSize, h.q.Stats().Empty, "All buffers must return to the empty list")
}
