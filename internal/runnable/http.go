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

package runnable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	logutil "github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
)

const httpShutdownTimeout = 5 * time.Second

// HTTPServer converts the given HTTP server into a runnable serving on lis.
func HTTPServer(name string, srv *http.Server, lis net.Listener) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		logger := log.FromContext(ctx).WithValues("name", name, "addr", lis.Addr().String())
		logger.V(logutil.DEFAULT).Info("HTTP server starting")

		stop := watch(ctx, func() {
			logger.V(logutil.DEFAULT).Info("HTTP server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error(err, "HTTP server shutdown failed")
			}
		})
		defer stop()

		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server %s failed - %w", name, err)
		}
		logger.V(logutil.DEFAULT).Info("HTTP server terminated")
		return nil
	})
}
