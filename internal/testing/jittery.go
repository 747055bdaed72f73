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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of BufferedJitteryConnection.
type JitterConfig struct {
	MaxLatencyMs      int
	FragmentMinBytes  int
	StallAfterBytes   int
	StallDuration     time.Duration
	Seed              uint64
	NoiseMaxBytes     int
	NoiseProbability  float64
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     5,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// BufferedJitteryConnection wraps an io.ReadWriter to behave like a
// USB-UART bridge (CH340, CP2102): reads arrive late, split at arbitrary
// points, and optionally with line noise spliced in. Bytes from the backend
// are buffered so fragmentation never loses data.
type BufferedJitteryConnection struct {
	backend             io.ReadWriter
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	bytesReadSinceStall int
	noiseInjected       int
	stallTriggered      bool
}

// NewBufferedJitteryConnection wraps backend with jitter simulation.
func NewBufferedJitteryConnection(backend io.ReadWriter, config JitterConfig) *BufferedJitteryConnection {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &BufferedJitteryConnection{
		backend: backend,
		config:  config,
		rng:     rng,
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
func (j *BufferedJitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read reads from the backend with simulated latency, noise and fragmentation.
func (j *BufferedJitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatencyMs > 0 {
		if delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond; delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		if err := j.refill(); err != nil {
			return 0, err
		}
		if len(j.readBuf) == 0 {
			return 0, nil
		}
	}

	toReturn := j.limit(min(len(j.readBuf), len(buf)))

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

// refill pulls whatever the backend has, possibly prefixed with noise.
func (j *BufferedJitteryConnection) refill() error {
	tmp := make([]byte, 1024)
	n, err := j.backend.Read(tmp)
	if err != nil {
		return err //nolint:wrapcheck // Pass-through wrapper
	}
	if n == 0 {
		return nil
	}
	if j.config.NoiseMaxBytes > 0 && j.rng.Float64() < j.config.NoiseProbability {
		for range 1 + j.rng.IntN(j.config.NoiseMaxBytes) {
			// 0xAB is the first header byte; keep noise from faking one
			b := byte(j.rng.IntN(256))
			if b == 0xAB {
				b = 0x00
			}
			j.readBuf = append(j.readBuf, b)
			j.noiseInjected++
		}
	}
	j.readBuf = append(j.readBuf, tmp[:n]...)
	return nil
}

// limit applies stall, USB boundary and random fragmentation rules.
func (j *BufferedJitteryConnection) limit(toReturn int) int {
	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			if j.config.StallDuration > 0 {
				time.Sleep(j.config.StallDuration)
			}
		} else {
			toReturn = min(toReturn, j.config.StallAfterBytes-j.bytesReadSinceStall)
		}
	}

	if j.config.USBBoundaryStress && toReturn > 0 {
		nextBoundary := ((j.bytesReadSinceStall / 64) + 1) * 64
		if until := nextBoundary - j.bytesReadSinceStall; until > 0 && until < toReturn {
			toReturn = until
		}
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}
	return toReturn
}

// NoiseInjected returns the number of noise bytes spliced into the stream.
func (j *BufferedJitteryConnection) NoiseInjected() int {
	return j.noiseInjected
}

// ResetStallState resets the stall tracking state.
func (j *BufferedJitteryConnection) ResetStallState() {
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
}

// ClearBuffer clears any buffered read data.
func (j *BufferedJitteryConnection) ClearBuffer() {
	j.readBuf = j.readBuf[:0]
}
