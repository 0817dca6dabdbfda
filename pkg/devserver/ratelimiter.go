// Copyright 2023 LiveKit, Inc.
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

package devserver

import (
	"sync"

	"golang.org/x/time/rate"
)

// KeyRateLimiter manages rate limiters keyed by API key.
// A nil limiter allows everything.
type KeyRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

// NewKeyRateLimiter returns nil if rateLimit <= 0 (disabled).
func NewKeyRateLimiter(rateLimit float64, burst int) *KeyRateLimiter {
	if rateLimit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(rateLimit),
		burst:     burst,
	}
}

func (l *KeyRateLimiter) Allow(apiKey string) bool {
	if l == nil || apiKey == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[apiKey]
	if !exists {
		limiter = rate.NewLimiter(l.rateLimit, l.burst)
		l.limiters[apiKey] = limiter
	}
	return limiter.Allow()
}
