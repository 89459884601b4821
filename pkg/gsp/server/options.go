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

package server

import (
	"flag"
	"fmt"

	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/config"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
)

const (
	DefaultGrpcHealthPort = 9005
	DefaultMetricsPort    = 9090
	ZapLogLevelFlagName   = "zap-log-level"
)

// Options contains the command-line configuration for the GSP daemon.
type Options struct {
	//
	// Device configuration.
	//
	ConfigFile string // Path to a YAML device configuration file.
	Revision   string // Overrides the configured hardware revision when set.
	PoolSize   int    // Overrides the configured pool size when positive.
	//
	// Synthetic load.
	//
	LoadJobs        int // Number of synthetic jobs to submit after startup.
	LoadConcurrency int // Number of concurrent synthetic submitters.
	LoadLayers      int // Layers per synthetic job.
	//
	// Diagnostics.
	//
	LogVerbosity   int         // Number for the log level verbosity.
	ZapOptions     zap.Options // Zap logging options.
	MetricsPort    int         // The metrics port.
	GRPCHealthPort int         // The port for gRPC liveness and readiness probes.
	EnablePprof    bool        // Enables pprof handlers on the metrics port.
	Tracing        bool        // Enables OpenTelemetry tracing of GSP jobs.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		LoadConcurrency: 4,
		LoadLayers:      2,
		LogVerbosity:    logging.DEFAULT,
		ZapOptions:      zap.Options{Development: true},
		MetricsPort:     DefaultMetricsPort,
		GRPCHealthPort:  DefaultGrpcHealthPort,
		EnablePprof:     true,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.StringVar(&opts.ConfigFile, "config-file", opts.ConfigFile,
		"Path to the YAML device configuration. Defaults are used when empty.")
	fs.StringVar(&opts.Revision, "revision", opts.Revision,
		"Overrides the GSP hardware revision of the configuration file.")
	fs.IntVar(&opts.PoolSize, "pool-size", opts.PoolSize,
		"Overrides the compute-config pool size of the configuration file.")
	fs.IntVar(&opts.LoadJobs, "load-jobs", opts.LoadJobs,
		"Number of synthetic jobs to submit after startup. Zero disables the load generator.")
	fs.IntVar(&opts.LoadConcurrency, "load-concurrency", opts.LoadConcurrency,
		"Number of concurrent synthetic submitters.")
	fs.IntVar(&opts.LoadLayers, "load-layers", opts.LoadLayers,
		"Layers per synthetic job.")
	fs.IntVar(&opts.GRPCHealthPort, "grpc-health-port", opts.GRPCHealthPort,
		"The port used for gRPC liveness and readiness probes.")
	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers on the metrics port. Defaults to true. Set to false to disable pprof handlers.")
	fs.BoolVar(&opts.Tracing, "tracing", opts.Tracing,
		"Enables OpenTelemetry tracing of GSP jobs. Exporters are configured with the OTEL_* environment variables.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	if opts.fs == nil {
		return nil
	}
	// Derive the zap log level from the -v flag when --zap-log-level is not set explicitly.
	zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
	if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
		lvl := -1 * (opts.LogVerbosity)
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
		zapLogLevelFlag.Changed = true
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	for _, pc := range []struct {
		name string
		port int
	}{
		{"grpc-health-port", opts.GRPCHealthPort},
		{"metrics-port", opts.MetricsPort},
	} {
		if pc.port < 1 || pc.port > 65535 {
			return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", pc.port, pc.name)
		}
	}
	if opts.GRPCHealthPort == opts.MetricsPort {
		return fmt.Errorf("port conflict: grpc-health-port (%d) and metrics-port (%d) must be different",
			opts.GRPCHealthPort, opts.MetricsPort)
	}

	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	if opts.PoolSize < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.PoolSize, "pool-size")
	}
	if opts.LoadJobs < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LoadJobs, "load-jobs")
	}
	if opts.LoadConcurrency < 1 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 1", opts.LoadConcurrency, "load-concurrency")
	}
	if opts.LoadLayers < 1 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 1", opts.LoadLayers, "load-layers")
	}
	return nil
}

// DeviceConfig loads the device configuration, applying the command-line overrides on top of the file.
func (opts *Options) DeviceConfig() (*config.Config, error) {
	var overrides []config.ConfigOption
	if opts.Revision != "" {
		rev, err := core.ParseRevision(opts.Revision)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, config.WithRevision(rev))
	}
	if opts.PoolSize > 0 {
		overrides = append(overrides, config.WithPoolSize(opts.PoolSize))
	}
	if opts.ConfigFile == "" {
		return config.NewConfig(overrides...)
	}
	return config.LoadFile(opts.ConfigFile, overrides...)
}
