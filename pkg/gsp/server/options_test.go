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
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"GRPCHealthPort", opts.GRPCHealthPort, DefaultGrpcHealthPort},
		{"MetricsPort", opts.MetricsPort, DefaultMetricsPort},
		{"LoadJobs", opts.LoadJobs, 0},
		{"LoadConcurrency", opts.LoadConcurrency, 4},
		{"LoadLayers", opts.LoadLayers, 2},
		{"EnablePprof", opts.EnablePprof, true},
		{"Tracing", opts.Tracing, false},
		{"LogVerbosity", opts.LogVerbosity, 2}, // logging.DEFAULT
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("NewOptions().%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAddFlagsOverridesDefaults(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	args := []string{
		"--config-file", "/etc/gsp.yaml",
		"--revision", "r7p0",
		"--pool-size", "16",
		"--load-jobs", "100",
		"--load-concurrency", "8",
		"--load-layers", "3",
		"--grpc-health-port", "5001",
		"--metrics-port", "5002",
		"--enable-pprof=false",
		"--tracing",
		"-v", "4",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ConfigFile", opts.ConfigFile, "/etc/gsp.yaml"},
		{"Revision", opts.Revision, "r7p0"},
		{"PoolSize", opts.PoolSize, 16},
		{"LoadJobs", opts.LoadJobs, 100},
		{"LoadConcurrency", opts.LoadConcurrency, 8},
		{"LoadLayers", opts.LoadLayers, 3},
		{"GRPCHealthPort", opts.GRPCHealthPort, 5001},
		{"MetricsPort", opts.MetricsPort, 5002},
		{"EnablePprof", opts.EnablePprof, false},
		{"Tracing", opts.Tracing, true},
		{"LogVerbosity", opts.LogVerbosity, 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("After parse, opts.%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Options)
		expectError bool
	}{
		{name: "defaults are valid", mutate: func(_ *Options) {}},
		{name: "health port zero", mutate: func(o *Options) { o.GRPCHealthPort = 0 }, expectError: true},
		{name: "metrics port above 65535", mutate: func(o *Options) { o.MetricsPort = 70000 }, expectError: true},
		{
			name:        "port conflict",
			mutate:      func(o *Options) { o.MetricsPort = o.GRPCHealthPort },
			expectError: true,
		},
		{name: "negative verbosity", mutate: func(o *Options) { o.LogVerbosity = -1 }, expectError: true},
		{name: "negative pool size", mutate: func(o *Options) { o.PoolSize = -1 }, expectError: true},
		{name: "negative load jobs", mutate: func(o *Options) { o.LoadJobs = -1 }, expectError: true},
		{name: "zero load concurrency", mutate: func(o *Options) { o.LoadConcurrency = 0 }, expectError: true},
		{name: "zero load layers", mutate: func(o *Options) { o.LoadLayers = 0 }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.mutate(opts)
			err := opts.Validate()
			if tt.expectError && err == nil {
				t.Errorf("Validate() = nil, want error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestCompleteDerivesZapLevel(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want zapcore.Level
	}{
		{name: "verbosity flag", args: []string{"-v", "3"}, want: zapcore.Level(-3)},
		{name: "explicit zap level wins", args: []string{"-v", "3", "--zap-log-level", "error"}, want: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			fs := pflag.NewFlagSet(tt.name, pflag.ContinueOnError)
			opts.AddFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("Failed to parse flags: %v", err)
			}
			if err := opts.Complete(); err != nil {
				t.Fatalf("Complete() = %v", err)
			}
			lvl, ok := opts.ZapOptions.Level.(zapcore.LevelEnabler)
			if !ok {
				t.Fatalf("ZapOptions.Level not set")
			}
			if !lvl.Enabled(tt.want) || lvl.Enabled(tt.want-1) {
				t.Errorf("ZapOptions.Level does not match %v", tt.want)
			}
		})
	}
}

func TestDeviceConfig(t *testing.T) {
	opts := NewOptions()
	cfg, err := opts.DeviceConfig()
	if err != nil {
		t.Fatalf("DeviceConfig() with defaults = %v", err)
	}
	if cfg.PoolSize != 8 {
		t.Errorf("PoolSize = %d, want default 8", cfg.PoolSize)
	}

	path := filepath.Join(t.TempDir(), "gsp.yaml")
	if err := os.WriteFile(path, []byte("revision: r6p0\npoolSize: 3\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	opts.ConfigFile = path
	opts.PoolSize = 5
	cfg, err = opts.DeviceConfig()
	if err != nil {
		t.Fatalf("DeviceConfig() = %v", err)
	}
	if cfg.Revision != core.RevisionR6P0 {
		t.Errorf("Revision = %s, want r6p0 from file", cfg.Revision)
	}
	if cfg.PoolSize != 5 {
		t.Errorf("PoolSize = %d, want flag override 5", cfg.PoolSize)
	}

	opts.Revision = "r42p0"
	if _, err := opts.DeviceConfig(); err == nil {
		t.Errorf("DeviceConfig() with unknown revision = nil, want error")
	}
}
