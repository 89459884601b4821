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
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the position of a Buffer in its lifecycle.
type State int32

const (
	// StateEmpty means the buffer sits on the empty list.
	StateEmpty State = iota
	// StateClaimed means a submitter took the buffer with Get and is populating it.
	StateClaimed
	// StateFilled means the buffer sits on the filled or separate list waiting for the worker.
	StateFilled
	// StateInFlight means the worker pulled the buffer and is executing it.
	StateInFlight
	// StateReleased means the owning queue was torn down.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateClaimed:
		return "Claimed"
	case StateFilled:
		return "Filled"
	case StateInFlight:
		return "InFlight"
	case StateReleased:
		return "Released"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// PixelFormat is the memory layout of a source layer.
type PixelFormat uint8

const (
	FormatARGB8888 PixelFormat = iota
	FormatRGB565
	FormatYUV420SP
	FormatYUV422SP
)

func (f PixelFormat) String() string {
	switch f {
	case FormatARGB8888:
		return "ARGB8888"
	case FormatRGB565:
		return "RGB565"
	case FormatYUV420SP:
		return "YUV420SP"
	case FormatYUV422SP:
		return "YUV422SP"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// IsYUV reports whether the format is a semi-planar YUV format.
func (f PixelFormat) IsYUV() bool {
	return f == FormatYUV420SP || f == FormatYUV422SP
}

// Rotation is a clockwise rotation applied while blending a layer.
type Rotation uint8

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Swaps reports whether the rotation exchanges width and height.
func (r Rotation) Swaps() bool {
	return r == Rotate90 || r == Rotate270
}

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X, Y, W, H uint32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W == 0 || r.H == 0
}

// Within reports whether r lies inside a width x height plane.
func (r Rect) Within(width, height uint32) bool {
	return uint64(r.X)+uint64(r.W) <= uint64(width) && uint64(r.Y)+uint64(r.H) <= uint64(height)
}

// Layer describes one source plane of a composition job.
type Layer struct {
	// Addr is an opaque handle to the source memory.
	Addr      uint64
	Format    PixelFormat
	SrcWidth  uint32
	SrcHeight uint32
	Crop      Rect
	Dest      Rect
	Rotation  Rotation
	Mirror    bool
	Alpha     uint8
	ZOrder    uint8
}

// Misc holds the job-wide parameters.
type Misc struct {
	// WorkWidth and WorkHeight bound every destination rectangle. Zero disables the check.
	WorkWidth  uint32
	WorkHeight uint32
	// Background is the ARGB fill colour for pixels no layer covers.
	Background uint32
	Dither     bool
	// Scale enables the scaler. Without it every layer's rotated crop must match its destination size.
	Scale bool
	// CoreHint selects a core on multi-core revisions; negative means any.
	CoreHint int
}

// Job is the submitter-facing content of a buffer.
type Job struct {
	Layers []Layer
	Misc   Misc
}

// Buffer is one compute-config descriptor from a queue's fixed pool.
//
// Layers and Misc belong to whoever holds the buffer: the submitter while it is CLAIMED, the worker while it is
// IN_FLIGHT. The queue never reads or writes them.
type Buffer struct {
	Layers []Layer
	Misc   Misc

	index int
	owner *Queue
	jobID string
	fence *Fence
	valid bool

	// elem and home locate the buffer in its current list; they change only under that list's lock.
	elem *list.Element
	home *list.List

	state     atomic.Int32
	cancelled atomic.Bool
}

func newBuffer(owner *Queue, index, maxLayers int) *Buffer {
	b := &Buffer{
		index:  index,
		owner:  owner,
		Layers: make([]Layer, 0, maxLayers),
	}
	b.state.Store(int32(StateEmpty))
	return b
}

// reset prepares the buffer for a new job. The caller must hold the empty-side lock and the buffer must have just
// been removed from the empty list.
func (b *Buffer) reset() {
	b.Layers = b.Layers[:0]
	b.Misc = Misc{CoreHint: -1}
	b.valid = false
	b.cancelled.Store(false)
	b.jobID = uuid.NewString()
	b.fence = newFence(b, b.jobID)
}

// Index returns the buffer's slot in the pool.
func (b *Buffer) Index() int { return b.index }

// JobID returns the identifier of the job currently carried by the buffer.
func (b *Buffer) JobID() string { return b.jobID }

// State returns the buffer's current lifecycle state.
func (b *Buffer) State() State { return State(b.state.Load()) }

// Cancelled reports whether the current job was cancelled.
func (b *Buffer) Cancelled() bool { return b.cancelled.Load() }

// Valid reports whether the buffer was pushed with a job that has not been consumed or discarded.
func (b *Buffer) Valid() bool { return b.valid }

// Fence returns the completion fence of the current job.
func (b *Buffer) Fence() *Fence { return b.fence }

// Complete signals the current job's fence. Only the first call per job has an effect.
func (b *Buffer) Complete(err error) {
	if b.fence != nil {
		b.fence.signal(err)
	}
}

// Load copies a job into the buffer.
func (b *Buffer) Load(job Job) error {
	limit := cap(b.Layers)
	if len(job.Layers) > limit {
		return fmt.Errorf("%w: %d layers, limit %d", ErrTooManyLayers, len(job.Layers), limit)
	}
	b.Layers = append(b.Layers[:0], job.Layers...)
	b.Misc = job.Misc
	return nil
}

// AddLayer appends a layer, failing once the pool's layer bound is reached.
func (b *Buffer) AddLayer(l Layer) error {
	if len(b.Layers) == cap(b.Layers) {
		return fmt.Errorf("%w: limit %d", ErrTooManyLayers, cap(b.Layers))
	}
	b.Layers = append(b.Layers, l)
	return nil
}

// Validate checks the buffer's layers and parameters against a layer bound.
func (b *Buffer) Validate(maxLayers int) error {
	if len(b.Layers) == 0 {
		return ErrNoLayers
	}
	if len(b.Layers) > maxLayers {
		return fmt.Errorf("%w: %d layers, limit %d", ErrTooManyLayers, len(b.Layers), maxLayers)
	}
	for i, l := range b.Layers {
		if err := b.validateLayer(l); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

func (b *Buffer) validateLayer(l Layer) error {
	if l.Rotation > Rotate270 {
		return fmt.Errorf("%w: unknown rotation %d", ErrInvalidLayer, l.Rotation)
	}
	if l.Crop.Empty() || !l.Crop.Within(l.SrcWidth, l.SrcHeight) {
		return fmt.Errorf("%w: crop %+v outside %dx%d source", ErrInvalidLayer, l.Crop, l.SrcWidth, l.SrcHeight)
	}
	if l.Dest.Empty() {
		return fmt.Errorf("%w: empty destination", ErrInvalidLayer)
	}
	if b.Misc.WorkWidth > 0 && b.Misc.WorkHeight > 0 && !l.Dest.Within(b.Misc.WorkWidth, b.Misc.WorkHeight) {
		return fmt.Errorf("%w: destination %+v outside %dx%d work area",
			ErrInvalidLayer, l.Dest, b.Misc.WorkWidth, b.Misc.WorkHeight)
	}
	if l.Format.IsYUV() && (l.Crop.X%2 != 0 || l.Crop.Y%2 != 0 || l.Crop.W%2 != 0 || l.Crop.H%2 != 0) {
		return fmt.Errorf("%w: %s crop must be 2-pixel aligned", ErrInvalidLayer, l.Format)
	}
	if !b.Misc.Scale {
		w, h := l.Crop.W, l.Crop.H
		if l.Rotation.Swaps() {
			w, h = h, w
		}
		if w != l.Dest.W || h != l.Dest.H {
			return fmt.Errorf("%w: scaling disabled but %dx%d maps to %dx%d", ErrInvalidLayer, w, h, l.Dest.W, l.Dest.H)
		}
	}
	return nil
}
