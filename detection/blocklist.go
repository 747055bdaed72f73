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
	"path/filepath"
	"strings"
)

// Bridge describes a USB-UART bridge chip seen on K5 programming cables.
type Bridge struct {
	VIDPID string
	Name   string
}

// KnownBridges returns the bridges shipped in common programming cables.
// Format: VID:PID in uppercase hexadecimal.
func KnownBridges() []Bridge {
	return []Bridge{
		{VIDPID: "1A86:7523", Name: "QinHeng CH340"},
		{VIDPID: "1A86:55D4", Name: "QinHeng CH9102"},
		{VIDPID: "10C4:EA60", Name: "Silicon Labs CP210x"},
		{VIDPID: "067B:2303", Name: "Prolific PL2303"},
		{VIDPID: "0403:6001", Name: "FTDI FT232R"},
		{VIDPID: "0403:6015", Name: "FTDI FT231X"},
	}
}

// BridgeName returns the chip name for vidpid, or "" when it is not a known bridge.
func BridgeName(vidpid string) string {
	vidpid = NormalizeVIDPID(vidpid)
	for _, b := range KnownBridges() {
		if b.VIDPID == vidpid {
			return b.Name
		}
	}
	return ""
}

// DefaultBlocklist returns USB devices that must never be opened during
// detection. Opening them toggles DTR and resets the attached board.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno
		"2341:0001", // Arduino Uno (old bootloader)
		"1366:0105", // SEGGER J-Link CDC
	}
}

// FormatVIDPID renders numeric-looking USB ids as "VVVV:PPPP".
func FormatVIDPID(vid, pid string) string {
	if vid == "" || pid == "" {
		return ""
	}
	return NormalizeVIDPID(padID(vid) + ":" + padID(pid))
}

func padID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) < 4 {
		id = strings.Repeat("0", 4-len(id)) + id
	}
	return id
}

// NormalizeVIDPID trims and upper-cases a VID:PID string.
func NormalizeVIDPID(vidpid string) string {
	return strings.ToUpper(strings.TrimSpace(vidpid))
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = NormalizeVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if vidpid == NormalizeVIDPID(blocked) {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored.
// Paths are compared after cleaning and case folding, so "COM3" matches "com3".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
