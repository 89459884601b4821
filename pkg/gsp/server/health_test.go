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
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
)

func TestHealthServer(t *testing.T) {
	t.Parallel()
	ctx := logutil.NewTestLoggerIntoContext(context.Background())
	var ready atomic.Bool
	s := NewHealthServer(ready.Load)

	testCases := []struct {
		name    string
		ready   bool
		service string
		want    healthPb.HealthCheckResponse_ServingStatus
	}{
		{name: "not ready", ready: false, want: healthPb.HealthCheckResponse_NOT_SERVING},
		{name: "ready, overall", ready: true, want: healthPb.HealthCheckResponse_SERVING},
		{name: "ready, device service", ready: true, service: ServiceName, want: healthPb.HealthCheckResponse_SERVING},
		{name: "unknown service", ready: true, service: "other", want: healthPb.HealthCheckResponse_SERVICE_UNKNOWN},
	}

	for _, tc := range testCases {
		ready.Store(tc.ready)
		resp, err := s.Check(ctx, &healthPb.HealthCheckRequest{Service: tc.service})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, resp.GetStatus(), tc.name)
	}

	ready.Store(true)
	list, err := s.List(ctx, &healthPb.HealthListRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthPb.HealthCheckResponse_SERVING, list.GetStatuses()[ServiceName].GetStatus())

	err = s.Watch(&healthPb.HealthCheckRequest{}, nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
