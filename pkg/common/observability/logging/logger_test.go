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

package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func TestInitLogging(t *testing.T) {
	t.Cleanup(func() { atomicLevel.SetLevel(zapcore.InfoLevel) })

	testCases := []struct {
		name      string
		opts      *zap.Options
		verbosity int
		want      zapcore.Level
	}{
		{
			name: "no level keeps info",
			opts: &zap.Options{},
			want: zapcore.InfoLevel,
		},
		{
			name: "zapcore level from opts",
			opts: &zap.Options{Level: zapcore.WarnLevel},
			want: zapcore.WarnLevel,
		},
		{
			name: "atomic level from opts",
			opts: &zap.Options{Level: uberzap.NewAtomicLevelAt(zapcore.ErrorLevel)},
			want: zapcore.ErrorLevel,
		},
		{
			name:      "verbosity overrides opts",
			opts:      &zap.Options{Level: zapcore.WarnLevel},
			verbosity: DEBUG,
			want:      zapcore.Level(-DEBUG),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			atomicLevel.SetLevel(zapcore.InfoLevel)
			InitLogging(tc.opts, tc.verbosity)
			assert.Equal(t, tc.want, Level())
		})
	}
}

func TestNewTestLoggerIntoContext(t *testing.T) {
	ctx := NewTestLoggerIntoContext(context.Background())
	logger := log.FromContext(ctx)
	assert.True(t, logger.V(TRACE).Enabled(), "test logger should emit trace output")
}
