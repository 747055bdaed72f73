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


// Package uart registers the serial-port detector. Ports are listed with
// go.bug.st/serial/enumerator and, in Probe mode, opened and sent a single
// handshake query.
package uart

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	k5link "github.com/ZaparooProject/go-k5link"
	"github.com/ZaparooProject/go-k5link/detection"
	"github.com/ZaparooProject/go-k5link/transport/uart"
	"go.bug.st/serial/enumerator"
)

// TransportName is the detection.DeviceInfo.Transport value for serial ports.
const TransportName = "uart"

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return TransportName
}

// Replaced in tests.
var (
	listPorts     = enumerator.GetDetailedPortsList
	probeDeviceFn = probeDevice
)

// Detect lists serial ports and keeps the ones that could be a radio cable.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if port == nil || !d.candidate(port, opts) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// candidate applies the blocklist, ignore list and USB filter.
func (*detector) candidate(port *enumerator.PortDetails, opts *detection.Options) bool {
	if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return false
	}
	if !port.IsUSB {
		return opts.IncludeNonUSB
	}
	return !detection.IsBlocked(detection.FormatVIDPID(port.VID, port.PID), opts.Blocklist)
}

// processPort builds the DeviceInfo and, in Probe mode, confirms it.
// A port that fails its probe is dropped.
func (*detector) processPort(ctx context.Context, port *enumerator.PortDetails,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	device := deviceInfo(port)
	if opts.Mode != detection.Probe {
		return device, true
	}

	baud := opts.Baud
	if baud <= 0 {
		baud = k5link.DefaultHandshakeBaud
	}
	version, ok := probeDeviceFn(ctx, port.Name, baud)
	if !ok {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	device.Metadata[detection.MetaVersion] = version
	device.Metadata[detection.MetaBaud] = strconv.Itoa(baud)
	return device, true
}

func deviceInfo(port *enumerator.PortDetails) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  TransportName,
		Path:       port.Name,
		Name:       portName(port),
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}

	if vidpid := detection.FormatVIDPID(port.VID, port.PID); vidpid != "" {
		device.Metadata[detection.MetaVIDPID] = vidpid
		if bridge := detection.BridgeName(vidpid); bridge != "" {
			device.Metadata[detection.MetaBridge] = bridge
			device.Confidence = detection.Medium
		}
	}
	if port.Product != "" {
		device.Metadata[detection.MetaProduct] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata[detection.MetaSerial] = port.SerialNumber
	}
	return device
}

func portName(port *enumerator.PortDetails) string {
	if port.Product != "" {
		return strings.TrimSpace(port.Product)
	}
	name := port.Name
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// probeDevice opens path and sends one handshake query. Only a single
// attempt is made; a port that does not answer is not ours to retry.
func probeDevice(ctx context.Context, path string, baud int) (string, bool) {
	opts := uart.DefaultOptions()
	opts.Baud = baud
	t, err := uart.Open(path, opts)
	if err != nil {
		k5link.Debugf("detect %s: open failed: %v", path, err)
		return "", false
	}
	defer func() { _ = t.Close() }()

	hs := k5link.NewHandshaker(
		k5link.WithAttempts(1),
		k5link.WithReplyTimeout(k5link.DefaultHandshakeTimeout),
	)
	res, err := hs.PerformHandshake(ctx, t)
	if err != nil {
		k5link.Debugf("detect %s: no handshake at %d baud: %v", path, baud, err)
		return "", false
	}
	return res.Version, true
}
