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

package config

import (
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/gsp/core"
)

// GSPConfig is the on-disk form of Config. Unset fields keep their defaults.
//
//	revision: r7p0
//	poolSize: 16
//	jobTimeout: 250ms
//	rejectWhenExhausted: true
type GSPConfig struct {
	Revision            *string          `json:"revision,omitempty"`
	PoolSize            *int             `json:"poolSize,omitempty"`
	MaxLayers           *int             `json:"maxLayers,omitempty"`
	JobTimeout          *metav1.Duration `json:"jobTimeout,omitempty"`
	SubmitTimeout       *metav1.Duration `json:"submitTimeout,omitempty"`
	SubmitPollInterval  *metav1.Duration `json:"submitPollInterval,omitempty"`
	RejectWhenExhausted *bool            `json:"rejectWhenExhausted,omitempty"`
	HistorySize         *int             `json:"historySize,omitempty"`
	WorkerName          *string          `json:"workerName,omitempty"`
	SimulatedLatency    *metav1.Duration `json:"simulatedLatency,omitempty"`
}

// LoadFile reads a YAML (or JSON) configuration file and converts it with NewConfigFromAPI. Extra options are applied
// after the file's values.
func LoadFile(path string, opts ...ConfigOption) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return Parse(raw, opts...)
}

// Parse decodes configuration bytes and converts them with NewConfigFromAPI. Unknown fields are rejected.
func Parse(raw []byte, opts ...ConfigOption) (*Config, error) {
	apiConfig := &GSPConfig{}
	if err := yaml.UnmarshalStrict(raw, apiConfig); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return NewConfigFromAPI(apiConfig, opts...)
}

// NewConfigFromAPI creates a new Config from the file representation.
func NewConfigFromAPI(apiConfig *GSPConfig, extra ...ConfigOption) (*Config, error) {
	opts := make([]ConfigOption, 0, 10+len(extra))
	if apiConfig != nil {
		if apiConfig.Revision != nil {
			rev, err := core.ParseRevision(*apiConfig.Revision)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithRevision(rev))
		}
		if apiConfig.PoolSize != nil {
			opts = append(opts, WithPoolSize(*apiConfig.PoolSize))
		}
		if apiConfig.MaxLayers != nil {
			opts = append(opts, WithMaxLayers(*apiConfig.MaxLayers))
		}
		if apiConfig.JobTimeout != nil {
			opts = append(opts, WithJobTimeout(apiConfig.JobTimeout.Duration))
		}
		if apiConfig.SubmitTimeout != nil {
			opts = append(opts, WithSubmitTimeout(apiConfig.SubmitTimeout.Duration))
		}
		if apiConfig.SubmitPollInterval != nil {
			opts = append(opts, WithSubmitPollInterval(apiConfig.SubmitPollInterval.Duration))
		}
		if apiConfig.RejectWhenExhausted != nil {
			opts = append(opts, WithRejectWhenExhausted(*apiConfig.RejectWhenExhausted))
		}
		if apiConfig.HistorySize != nil {
			opts = append(opts, WithHistorySize(*apiConfig.HistorySize))
		}
		if apiConfig.WorkerName != nil {
			opts = append(opts, WithWorkerName(*apiConfig.WorkerName))
		}
		if apiConfig.SimulatedLatency != nil {
			opts = append(opts, WithSimulatedLatency(apiConfig.SimulatedLatency.Duration))
		}
	}
	opts = append(opts, extra...)
	return NewConfig(opts...)
}
