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
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/internal/runnable"
	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/profiling"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/tracing"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/device"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/metrics"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/server"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/version"
)

// Logging
var setupLog = ctrl.Log.WithName("setup")

func NewRunner() *Runner {
	return &Runner{
		gspExecutableName: "GSP",
	}
}

// Runner is used to run the GSP daemon.
type Runner struct {
	gspExecutableName string
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.gspExecutableName = exeName
	return r
}

func (r *Runner) Run(ctx context.Context) error {
	logutil.InitSetupLogging()
	setupLog.Info(r.gspExecutableName+" build", "commit-sha", version.CommitSHA, "build-ref", version.BuildRef)

	opts := server.NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()
	if err := opts.Complete(); err != nil {
		setupLog.Error(err, "Failed to complete options")
		return err
	}
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Invalid options")
		return err
	}
	logutil.InitLogging(&opts.ZapOptions, 0)

	// Print all flag values
	flags := make(map[string]any)
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	if opts.Tracing {
		if err := tracing.InitTracing(ctx, setupLog); err != nil {
			setupLog.Error(err, "Failed to initialize tracing")
			return err
		}
	}

	cfg, err := opts.DeviceConfig()
	if err != nil {
		setupLog.Error(err, "Failed to load device configuration", "file", opts.ConfigFile)
		return err
	}
	setupLog.Info("Device configuration loaded", "config", cfg)

	dev, err := device.New(cfg, device.WithLogger(ctrl.Log.WithName("gsp")))
	if err != nil {
		setupLog.Error(err, "Failed to create GSP device")
		return err
	}

	metrics.Register()

	healthLis, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.GRPCHealthPort))
	if err != nil {
		setupLog.Error(err, "Failed to listen for health checks", "port", opts.GRPCHealthPort)
		return err
	}
	metricsLis, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.MetricsPort))
	if err != nil {
		_ = healthLis.Close()
		setupLog.Error(err, "Failed to listen for metrics", "port", opts.MetricsPort)
		return err
	}

	g, gctx := errgroup.WithContext(log.IntoContext(ctx, ctrl.Log))
	g.Go(func() error {
		return dev.Run(gctx)
	})
	g.Go(func() error {
		return runnable.GRPCServer("health", newHealthServer(dev), healthLis).Start(gctx)
	})
	g.Go(func() error {
		return runnable.HTTPServer("metrics", newMetricsServer(opts.EnablePprof), metricsLis).Start(gctx)
	})
	if opts.LoadJobs > 0 {
		g.Go(func() error {
			if err := waitReady(gctx, dev); err != nil {
				return nil
			}
			_, err := generateLoad(gctx, dev, opts.LoadJobs, opts.LoadConcurrency, opts.LoadLayers)
			return err
		})
	}

	setupLog.Info("GSP daemon starting")
	if err := g.Wait(); err != nil {
		setupLog.Error(err, "GSP daemon failed")
		return err
	}
	setupLog.Info("GSP daemon terminated")
	return nil
}

func newHealthServer(dev *device.Device) *grpc.Server {
	srv := grpc.NewServer()
	healthPb.RegisterHealthServer(srv, server.NewHealthServer(dev.Ready))
	return srv
}

func newMetricsServer(enablePprof bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))
	if enablePprof {
		setupLog.Info("Enabling pprof handlers")
		profiling.SetupPprofHandlers(mux)
	}
	return &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}
