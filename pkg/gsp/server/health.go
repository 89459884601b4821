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

// Package server holds the GSP daemon's command-line options and its gRPC health service.
package server

import (
	"context"

	"google.golang.org/grpc/codes"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
)

// ServiceName is the health service name of the GSP device.
const ServiceName = "gsp.Device"

// HealthServer reports the GSP device as serving while ready returns true.
type HealthServer struct {
	ready func() bool
}

// NewHealthServer returns a health server backed by ready.
func NewHealthServer(ready func() bool) *HealthServer {
	return &HealthServer{ready: ready}
}

func (s *HealthServer) Check(ctx context.Context, in *healthPb.HealthCheckRequest) (*healthPb.HealthCheckResponse, error) {
	logger := log.FromContext(ctx)
	if in.Service != "" && in.Service != ServiceName {
		logger.V(logutil.DEFAULT).Info("gRPC health check requested unknown service",
			"available-services", []string{ServiceName}, "requested-service", in.Service)
		return &healthPb.HealthCheckResponse{Status: healthPb.HealthCheckResponse_SERVICE_UNKNOWN}, nil
	}

	if !s.ready() {
		logger.V(logutil.DEBUG).Info("gRPC health check not serving", "service", in.Service)
		return &healthPb.HealthCheckResponse{Status: healthPb.HealthCheckResponse_NOT_SERVING}, nil
	}
	logger.V(logutil.DEBUG).Info("gRPC health check serving", "service", in.Service)
	return &healthPb.HealthCheckResponse{Status: healthPb.HealthCheckResponse_SERVING}, nil
}

func (s *HealthServer) List(ctx context.Context, _ *healthPb.HealthListRequest) (*healthPb.HealthListResponse, error) {
	resp, err := s.Check(ctx, &healthPb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return nil, err
	}
	return &healthPb.HealthListResponse{
		Statuses: map[string]*healthPb.HealthCheckResponse{ServiceName: resp},
	}, nil
}

func (s *HealthServer) Watch(in *healthPb.HealthCheckRequest, srv healthPb.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "Watch is not implemented")
}
