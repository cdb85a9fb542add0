// Copyright 2019 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"math/rand"
	"time"
)

// retry delays grow geometrically from minDelay up to maxDelay
const (
	minDelay = 1 * time.Second
	maxDelay = 120 * time.Second
	factor   = 1.6
	jitter   = 0.2
)

// backoff returns the delay before retry number retries of a failed post,
// counting from zero.
func backoff(retries uint) time.Duration {
	lo, hi := float64(minDelay), float64(maxDelay)
	delay := lo
	for ; delay < hi && retries != 0; retries-- {
		delay *= factor
	}
	if delay > hi {
		delay = hi
	}
	delay *= 1 + jitter*(2*rand.Float64()-1)
	if delay < lo {
		delay = lo
	}
	return time.Duration(delay)
}
