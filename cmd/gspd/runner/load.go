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

package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/kcfg"
)

const (
	// Every separateEvery-th synthetic job goes to the separate list.
	separateEvery = 8

	workWidth  = 1920
	workHeight = 1080
	tileWidth  = 320
	tileHeight = 180
)

// submitter is the part of a GSP device the load generator drives.
type submitter interface {
	Submit(ctx context.Context, job kcfg.Job) (*kcfg.Fence, error)
	SubmitSeparate(ctx context.Context, job kcfg.Job) (*kcfg.Fence, error)
}

type loadResult struct {
	Succeeded int
	Failed    int
}

// waitReady blocks until the device accepts jobs.
func waitReady(ctx context.Context, dev interface{ Ready() bool }) error {
	return wait.PollUntilContextCancel(ctx, 10*time.Millisecond, true, func(context.Context) (bool, error) {
		return dev.Ready(), nil
	})
}

// generateLoad submits the given number of synthetic compositions from up to concurrency goroutines and waits for
// all of them. Rejected and failed jobs are counted, not returned. Only the end of ctx stops the run early.
func generateLoad(ctx context.Context, dev submitter, jobs, concurrency, layers int) (loadResult, error) {
	logger := log.FromContext(ctx).WithName("load")
	logger.V(logutil.DEFAULT).Info("Synthetic load starting", "jobs", jobs, "concurrency", concurrency,
		"layers", layers)

	var succeeded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < jobs && gctx.Err() == nil; i++ {
		g.Go(func() error {
			submit := dev.Submit
			if i%separateEvery == separateEvery-1 {
				submit = dev.SubmitSeparate
			}
			f, err := submit(gctx, syntheticJob(i, layers))
			if err == nil {
				err = f.Wait(gctx)
			}
			switch {
			case err == nil:
				succeeded.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				logger.V(logutil.DEBUG).Info("Synthetic job failed", "index", i, "err", err)
			}
			return nil
		})
	}
	err := g.Wait()

	res := loadResult{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
	logger.V(logutil.DEFAULT).Info("Synthetic load finished", "succeeded", res.Succeeded, "failed", res.Failed)
	if errors.Is(err, context.Canceled) {
		return res, nil
	}
	return res, err
}

// syntheticJob composes layers tiles onto a 1080p work area, placed so consecutive jobs move across the screen.
func syntheticJob(i, layers int) kcfg.Job {
	job := kcfg.Job{
		Layers: make([]kcfg.Layer, 0, layers),
		Misc:   kcfg.Misc{WorkWidth: workWidth, WorkHeight: workHeight, Background: 0xff000000, CoreHint: -1},
	}
	cols, rows := uint32(workWidth/tileWidth), uint32(workHeight/tileHeight)
	for l := 0; l < layers; l++ {
		slot := uint32(i+l) % (cols * rows)
		format := kcfg.FormatARGB8888
		if l%2 == 1 {
			format = kcfg.FormatYUV420SP
		}
		job.Layers = append(job.Layers, kcfg.Layer{
			Addr:      uint64(0x8000_0000 + (i*layers+l)*tileWidth*tileHeight*4),
			Format:    format,
			SrcWidth:  tileWidth,
			SrcHeight: tileHeight,
			Crop:      kcfg.Rect{W: tileWidth, H: tileHeight},
			Dest:      kcfg.Rect{X: slot % cols * tileWidth, Y: slot / cols * tileHeight, W: tileWidth, H: tileHeight},
			Alpha:     0xff,
			ZOrder:    uint8(l),
		})
	}
	return job
}
