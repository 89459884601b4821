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

// Package profiling exposes the runtime's pre-defined pprof profiles over HTTP.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"
)

// Profiles lists the pre-defined runtime profiles served by SetupPprofHandlers.
var Profiles = []string{
	"heap",
	"goroutine",
	"allocs",
	"threadcreate",
	"block",
	"mutex",
}

// SetupPprofHandlers registers a /debug/pprof/<name> handler on mux for every entry of Profiles and turns on block
// and mutex sampling, so contention on the queue locks shows up in the profiles.
func SetupPprofHandlers(mux *http.ServeMux) {
	for _, p := range Profiles {
		mux.Handle("/debug/pprof/"+p, pprof.Handler(p))
	}

	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)
}
