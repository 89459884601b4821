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

/*
Package kcfg implements the GSP compute-config queue: a fixed pool of configuration buffers ("kcfg") handed between
the submission path and the worker that drives the scaling/composition core.

# Buffer Lifecycle

Every buffer is allocated once by NewQueue and cycles through the following states until Teardown:

	EMPTY --Get--> CLAIMED --Push--> FILLED --Pull/Acquire--> IN_FLIGHT --Put--> EMPTY

Cancel and InvalidateFilled return FILLED buffers straight to EMPTY. Cancelling a CLAIMED buffer returns it to EMPTY.
Cancelling an IN_FLIGHT buffer only marks it; the worker still owns it until Put.

# Locking

The filled side (filled and separate lists, the wake channel) and the empty side each have their own mutex. Single
list operations take one of them. Operations that span both sides take the filled lock first, then the empty lock.
A buffer is only moved between lists by a goroutine holding the lock of the list it is moved into or out of, and its
state is changed under that same lock.
*/
package kcfg
