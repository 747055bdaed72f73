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

package k5link

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// MonitorStats counts the traffic seen by Listen or RawSend.
type MonitorStats struct {
	Sends    int
	Received int
}

// Listen keeps t open without transmitting until hold elapses, passing
// whatever arrives to observer. It shows whether merely opening the port
// resets the target.
func Listen(ctx context.Context, t Transport, hold time.Duration, observer WireObserver) (MonitorStats, error) {
	wire := newWireRecorder(t, observer)
	var stats MonitorStats
	buf := make([]byte, 256)

	deadline := time.Now().Add(max(hold, 0))
	for time.Now().Before(deadline) {
		n, err := readSome(ctx, t, buf)
		if err != nil {
			return stats, wire.trace.WrapError(err)
		}
		if n > 0 {
			stats.Received += n
			wire.rx(buf[:n], "")
		}
	}
	Debugf("listen: held %v, received %d bytes", hold, stats.Received)
	return stats, nil
}

// RawSend writes data every interval until duration elapses, draining and
// reporting any inbound bytes between sends. No framing is applied.
func RawSend(
	ctx context.Context, t Transport, data []byte, duration, interval time.Duration, observer WireObserver,
) (MonitorStats, error) {
	wire := newWireRecorder(t, observer)
	var stats MonitorStats
	buf := make([]byte, 256)

	deadline := time.Now().Add(max(duration, 0))
	for time.Now().Before(deadline) {
		if err := wire.send(t, data, "raw"); err != nil {
			return stats, wire.trace.WrapError(err)
		}
		stats.Sends++

		n, err := readSome(ctx, t, buf)
		if err != nil {
			return stats, wire.trace.WrapError(err)
		}
		if n > 0 {
			stats.Received += n
			wire.rx(buf[:n], "")
		}

		if interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return stats, fmt.Errorf("raw send cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}
	return stats, nil
}

// ParseHex decodes a loosely written hex string such as "ab cd" or "5".
// Spaces are ignored and an odd digit count gets a leading zero.
func ParseHex(s string) ([]byte, error) {
	digits := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	data, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return data, nil
}
