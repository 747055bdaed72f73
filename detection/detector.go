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


// Package detection finds serial ports that may have a K5 radio or its
// bootloader behind them. Transport-specific detectors register themselves
// on import; detection/uart is the only one today.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/internal/syncutil"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive only reads USB descriptors; no port is opened
	Passive Mode = iota
	// Probe opens each candidate port and sends one handshake query
	Probe
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Probe:
		return "probe"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Confidence represents how sure detection is that a radio is attached
type Confidence int

const (
	// Low: a USB serial port with an unrecognised bridge
	Low Confidence = iota
	// Medium: a bridge chip used by programming cables
	Medium
	// High: the radio answered a handshake query
	High
)

// String returns the lowercase confidence name.
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Metadata keys filled by detectors.
const (
	MetaVIDPID       = "vidpid"
	MetaBridge       = "bridge"
	MetaProduct      = "product"
	MetaSerial       = "serial"
	MetaVersion      = "version"
	MetaBaud         = "baud"
	MetaManufacturer = "manufacturer"
)

// DeviceInfo represents a detected serial port
type DeviceInfo struct {
	// Additional metadata keyed by the Meta* constants
	Metadata map[string]string
	// Transport type, "uart"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Label is the one-line description shown in port pickers.
func (d DeviceInfo) Label() string {
	label := d.Path
	if bridge := d.Metadata[MetaBridge]; bridge != "" {
		label += " [" + bridge + "]"
	} else if product := d.Metadata[MetaProduct]; product != "" {
		label += " [" + product + "]"
	}
	if version := d.Metadata[MetaVersion]; version != "" {
		label += " firmware " + version
	}
	return label
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["2341:0043"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Baud used by Probe
	Baud int
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
	// IncludeNonUSB keeps built-in serial ports (ttyS*, ttyAMA*)
	IncludeNonUSB bool
}

// DefaultOptions returns passive detection of USB serial ports.
func DefaultOptions() Options {
	return Options{
		Mode:        Passive,
		Timeout:     5 * time.Second,
		Baud:        k5link.DefaultHandshakeBaud,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

var (
	// ErrNoDevicesFound indicates no candidate ports were found
	ErrNoDevicesFound = errors.New("no K5 serial ports found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrNoDetectors indicates no detector is registered for the requested transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var (
	registryMu syncutil.Mutex
	registry   []Detector
)

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(transports) == 0 {
		return append([]Detector(nil), registry...)
	}
	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel and returns the merged
// list, best candidates first. Detector errors are returned only when no
// detector found anything.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func(d Detector) {
			results <- runSingleDetector(ctx, d, opts)
		}(d)
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	key := cacheKey(detector.Transport(), opts.Mode)
	if opts.EnableCache {
		// cached results bypass Detect, so filter them again
		if cached, found := cache.get(key, opts.CacheTTL); found {
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			cache.set(key, devices)
		} else {
			// an unplugged cable must not linger until the TTL expires
			cache.clearTransport(detector.Transport())
		}
	}
	return detectionResult{devices: devices}
}

func collectDetectionResults(ctx context.Context, results chan detectionResult, n int) ([]DeviceInfo, error) {
	var all []DeviceInfo
	var errs []error

	for range n {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				all = append(all, res.devices...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(all) > 0 {
		SortDevices(all)
		return all, nil
	}
	if ctx.Err() != nil {
		return nil, ErrDetectionTimeout
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

// SortDevices orders by confidence, highest first, then by path.
func SortDevices(devices []DeviceInfo) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Confidence != devices[j].Confidence {
			return devices[i].Confidence > devices[j].Confidence
		}
		return devices[i].Path < devices[j].Path
	})
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata[MetaVIDPID]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	cache.clear()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	cache.clearTransport(transport)
}
