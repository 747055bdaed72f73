// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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


package detection

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-k5link/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache remembers the last port list per transport and mode. Probing
// opens every port, so repeated pickers within the TTL reuse the result.
type resultCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{entries: make(map[string]cacheEntry)}

func cacheKey(transport string, mode Mode) string {
	return fmt.Sprintf("%s/%d", transport, mode)
}

func (c *resultCache) get(key string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Since(entry.stored) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func (c *resultCache) set(key string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{devices: cloneDevices(devices), stored: time.Now()}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *resultCache) clearTransport(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, transport+"/") {
			delete(c.entries, key)
		}
	}
}

// cloneDevices copies the slice and each metadata map.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}
