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

package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
)

// ErrClosed indicates use of a closed engine.
var ErrClosed = errors.New("GSP core closed")

const (
	globalEnable uint32 = 1 << 0
	globalRun    uint32 = 1 << 1

	intDone uint32 = 1 << 0

	layerEnable uint32 = 1 << 31
)

// Offsets inside one layer register block.
const (
	layerAddrLo   = 0x00
	layerAddrHi   = 0x04
	layerSrcSize  = 0x08
	layerCropPos  = 0x0c
	layerCropSize = 0x10
	layerDestPos  = 0x14
	layerDestSize = 0x18
	layerCtrl     = 0x1c
)

// simCore is a software model of the GSP engine. It keeps a register file, executes one job at a time and raises a
// completion interrupt after a delay derived from the revision's cost model.
type simCore struct {
	profile Profile
	clock   clock.Clock
	latency time.Duration
	stall   bool
	logger  logr.Logger

	irq chan Event

	mu          sync.Mutex
	regs        map[uint32]uint32
	initialized bool
	busy        bool
	closed      bool
	// abort is closed by Reset and Close to drop the pending completion.
	abort chan struct{}
}

func newSimCore(p Profile, opts ...Option) *simCore {
	s := &simCore{
		profile: p,
		clock:   clock.RealClock{},
		logger:  logr.Discard(),
		irq:     make(chan Event, 1),
		regs:    make(map[uint32]uint32),
		abort:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithName("gsp-core").WithValues("revision", p.Revision)
	return s
}

func (s *simCore) Name() string             { return "gsp-" + string(s.profile.Revision) }
func (s *simCore) Profile() Profile         { return s.profile }
func (s *simCore) Interrupts() <-chan Event { return s.irq }

func (s *simCore) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.powerOnLocked()
	s.initialized = true
	s.logger.V(logutil.DEFAULT).Info("GSP core initialized",
		"maxLayers", s.profile.MaxLayers, "cores", s.profile.Cores)
	return nil
}

// powerOnLocked restores the register file to its state after Init.
func (s *simCore) powerOnLocked() {
	s.regs = make(map[uint32]uint32)
	rm := s.profile.Registers
	s.regs[rm.Global] = globalEnable
	s.regs[rm.IntEnable] = intDone
	s.regs[rm.IntStatus] = 0
}

func (s *simCore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	close(s.abort)
	s.abort = make(chan struct{})
	s.busy = false
	if s.initialized {
		s.powerOnLocked()
	}
	s.logger.V(logutil.VERBOSE).Info("GSP core reset")
	return nil
}

func (s *simCore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.initialized = false
	s.busy = false
	close(s.abort)
	return nil
}

func (s *simCore) Trigger(buf *kcfg.Buffer) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrUnsupportedJob)
	}
	if err := s.profile.Check(buf); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.programLocked(buf)
	s.busy = true
	abort := s.abort
	s.mu.Unlock()

	d := s.jobLatency(buf)
	s.logger.V(logutil.TRACE).Info("GSP job triggered", "jobID", buf.JobID(), "layers", len(buf.Layers),
		"latency", d)
	if !s.stall {
		go s.complete(buf.JobID(), d, abort)
	}
	return nil
}

func (s *simCore) programLocked(buf *kcfg.Buffer) {
	rm := s.profile.Registers
	for i := 0; i < s.profile.MaxLayers; i++ {
		base := rm.LayerBase + uint32(i)*rm.LayerStride
		if i >= len(buf.Layers) {
			s.regs[base+layerCtrl] = 0
			continue
		}
		l := buf.Layers[i]
		s.regs[base+layerAddrLo] = uint32(l.Addr)
		s.regs[base+layerAddrHi] = uint32(l.Addr >> 32)
		s.regs[base+layerSrcSize] = pack(l.SrcWidth, l.SrcHeight)
		s.regs[base+layerCropPos] = pack(l.Crop.X, l.Crop.Y)
		s.regs[base+layerCropSize] = pack(l.Crop.W, l.Crop.H)
		s.regs[base+layerDestPos] = pack(l.Dest.X, l.Dest.Y)
		s.regs[base+layerDestSize] = pack(l.Dest.W, l.Dest.H)
		s.regs[base+layerCtrl] = layerControl(l)
	}

	m := buf.Misc
	var flags uint32
	if m.Dither {
		flags |= 1 << 0
	}
	if m.Scale {
		flags |= 1 << 1
	}
	if m.CoreHint >= 0 {
		flags |= uint32(m.CoreHint&0xf) << 4
	}
	s.regs[rm.Misc] = pack(m.WorkWidth, m.WorkHeight)
	s.regs[rm.Misc+0x4] = m.Background
	s.regs[rm.Misc+0x8] = flags
	s.regs[rm.IntStatus] = 0
	s.regs[rm.Global] = globalEnable | globalRun
}

func (s *simCore) jobLatency(buf *kcfg.Buffer) time.Duration {
	if s.latency > 0 {
		return s.latency
	}
	var pixels uint64
	for _, l := range buf.Layers {
		pixels += uint64(l.Dest.W) * uint64(l.Dest.H)
	}
	return s.profile.SetupCost + time.Duration(uint64(s.profile.MegapixelCost)*pixels/1_000_000)
}

// complete raises the completion interrupt for jobID unless the job is aborted first.
func (s *simCore) complete(jobID string, d time.Duration, abort <-chan struct{}) {
	select {
	case <-s.clock.After(d):
	case <-abort:
		return
	}

	s.mu.Lock()
	select {
	case <-abort:
		s.mu.Unlock()
		return
	default:
	}
	rm := s.profile.Registers
	s.busy = false
	s.regs[rm.Global] &^= globalRun
	s.regs[rm.IntStatus] |= intDone
	status := s.regs[rm.IntStatus]
	s.mu.Unlock()

	select {
	case s.irq <- Event{JobID: jobID, Status: status}:
	case <-abort:
	}
}

func (s *simCore) Dump() []Register {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Register, 0, len(s.regs))
	for off, v := range s.regs {
		out = append(out, Register{Offset: off, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func pack(lo, hi uint32) uint32 {
	return lo&0xffff | (hi&0xffff)<<16
}

func layerControl(l kcfg.Layer) uint32 {
	ctrl := layerEnable | uint32(l.Format)&0xf | (uint32(l.Rotation)&0x3)<<4 | uint32(l.Alpha)<<8 |
		uint32(l.ZOrder)<<16
	if l.Mirror {
		ctrl |= 1 << 6
	}
	return ctrl
}
