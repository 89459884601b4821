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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
)

// Revision names a GSP hardware revision.
type Revision string

const (
	RevisionR6P0 Revision = "r6p0"
	RevisionR7P0 Revision = "r7p0"
	RevisionR8P0 Revision = "r8p0"
)

// RegisterMap holds the offsets of the register blocks of a revision.
type RegisterMap struct {
	Global      uint32
	IntEnable   uint32
	IntStatus   uint32
	Misc        uint32
	LayerBase   uint32
	LayerStride uint32
}

// Profile describes what a revision can do.
type Profile struct {
	Revision  Revision
	MaxLayers int
	Cores     int
	Rotation  bool
	Scaling   bool
	YUV       bool
	// SetupCost is the fixed per-job execution time.
	SetupCost time.Duration
	// MegapixelCost is the execution time per million destination pixels.
	MegapixelCost time.Duration
	Registers     RegisterMap
}

var profiles = map[Revision]Profile{
	RevisionR6P0: {
		Revision:      RevisionR6P0,
		MaxLayers:     4,
		Cores:         1,
		Rotation:      false,
		Scaling:       true,
		YUV:           true,
		SetupCost:     200 * time.Microsecond,
		MegapixelCost: 4 * time.Millisecond,
		Registers: RegisterMap{
			Global: 0x000, IntEnable: 0x004, IntStatus: 0x008, Misc: 0x010,
			LayerBase: 0x040, LayerStride: 0x40,
		},
	},
	RevisionR7P0: {
		Revision:      RevisionR7P0,
		MaxLayers:     6,
		Cores:         1,
		Rotation:      true,
		Scaling:       true,
		YUV:           true,
		SetupCost:     150 * time.Microsecond,
		MegapixelCost: 3 * time.Millisecond,
		Registers: RegisterMap{
			Global: 0x000, IntEnable: 0x008, IntStatus: 0x00c, Misc: 0x020,
			LayerBase: 0x100, LayerStride: 0x40,
		},
	},
	RevisionR8P0: {
		Revision:      RevisionR8P0,
		MaxLayers:     8,
		Cores:         2,
		Rotation:      true,
		Scaling:       true,
		YUV:           true,
		SetupCost:     100 * time.Microsecond,
		MegapixelCost: 2 * time.Millisecond,
		Registers: RegisterMap{
			Global: 0x000, IntEnable: 0x008, IntStatus: 0x00c, Misc: 0x020,
			LayerBase: 0x200, LayerStride: 0x80,
		},
	},
}

// ParseRevision maps a revision string such as "r8p0" onto a known Revision.
func ParseRevision(s string) (Revision, error) {
	rev := Revision(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[rev]; !ok {
		return "", fmt.Errorf("%w: %q (known: %s)", ErrUnsupportedRevision, s, strings.Join(KnownRevisions(), ", "))
	}
	return rev, nil
}

// KnownRevisions lists the supported revisions in sorted order.
func KnownRevisions() []string {
	revs := make([]string, 0, len(profiles))
	for rev := range profiles {
		revs = append(revs, string(rev))
	}
	sort.Strings(revs)
	return revs
}

// ProfileFor returns the capability profile of a revision.
func ProfileFor(rev Revision) (Profile, error) {
	p, ok := profiles[rev]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupportedRevision, rev)
	}
	return p, nil
}

// Supports checks a job against the profile.
func (p Profile) Supports(layers int, rotate, scale, yuv bool, coreHint int) error {
	switch {
	case layers > p.MaxLayers:
		return fmt.Errorf("%w: %d layers, %s supports %d", ErrUnsupportedJob, layers, p.Revision, p.MaxLayers)
	case rotate && !p.Rotation:
		return fmt.Errorf("%w: %s has no rotator", ErrUnsupportedJob, p.Revision)
	case scale && !p.Scaling:
		return fmt.Errorf("%w: %s has no scaler", ErrUnsupportedJob, p.Revision)
	case yuv && !p.YUV:
		return fmt.Errorf("%w: %s has no YUV input", ErrUnsupportedJob, p.Revision)
	case coreHint >= p.Cores:
		return fmt.Errorf("%w: core %d requested, %s has %d", ErrUnsupportedJob, coreHint, p.Revision, p.Cores)
	}
	return nil
}

// Check derives the capabilities a buffer needs and checks them with Supports.
func (p Profile) Check(buf *kcfg.Buffer) error {
	var rotate, yuv bool
	for _, l := range buf.Layers {
		rotate = rotate || l.Rotation != kcfg.Rotate0 || l.Mirror
		yuv = yuv || l.Format.IsYUV()
	}
	return p.Supports(len(buf.Layers), rotate, buf.Misc.Scale, yuv, buf.Misc.CoreHint)
}
