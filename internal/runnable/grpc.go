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

// Package runnable turns long-running servers into context-bound runnables that stop when their context ends.
package runnable

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
)

// GRPCServer converts the given gRPC server into a runnable serving on lis.
// The server name is just being used for logging.
func GRPCServer(name string, srv *grpc.Server, lis net.Listener) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		logger := log.FromContext(ctx).WithValues("name", name, "addr", lis.Addr().String())
		logger.V(logutil.DEFAULT).Info("gRPC server starting")

		stop := watch(ctx, func() {
			logger.V(logutil.DEFAULT).Info("gRPC server shutting down")
			srv.GracefulStop()
		})
		defer stop()

		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server %s failed - %w", name, err)
		}
		logger.V(logutil.DEFAULT).Info("gRPC server terminated")
		return nil
	})
}

// watch calls shutdown once ctx ends. The returned func releases the watcher if the server stopped on its own.
func watch(ctx context.Context, shutdown func()) func() {
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdown()
		case <-doneCh:
		}
	}()
	return func() { close(doneCh) }
}
