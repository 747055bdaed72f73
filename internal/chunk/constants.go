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

// Package chunk implements the bootloader upload wire format: the transfer
// header, sequenced CRC32-checked data packets and the single-byte device
// responses.
package chunk

// Transfer limits enforced by the bootloader
const (
	Magic           = 0x32445055      // "UPD2" read as a little-endian u32
	MaxChunk        = 2048            // Largest chunk the device accepts
	MinFirmwareSize = 16              // Smallest image the device accepts
	MaxFirmwareSize = 3 * 1024 * 1024 // Largest image the device accepts
	DefaultChunk    = 1024            // Chunk size used when none is given
)

// Wire sizes
const (
	HeaderLength   = 4 + 4 + 2 // magic u32 + total u32 + chunk u16
	PacketOverhead = 4 + 2 + 4 // seq u32 + len u16 + crc32 u32
)

// Device responses to a data packet
const (
	Ack byte = 'A' // Packet written, advance
	Nak byte = 'E' // Packet rejected, followed by one status byte
)

// Line protocol
const (
	GoCommand     = "GO\n"
	ReadySentinel = "READY"
	StartSentinel = "START"
	OKSentinel    = "OK"
	ErrSentinel   = "ERR"
)

// NakCode is the status byte that follows a Nak.
type NakCode byte

// Status bytes sent by the bootloader after a Nak
const (
	NakSeqHeader NakCode = 1 // Sequence header missing or out of order
	NakLength    NakCode = 2 // Length zero or above the negotiated chunk
	NakOverflow  NakCode = 3 // Packet would run past the declared total
	NakData      NakCode = 4 // Data bytes did not arrive in time
	NakCRC       NakCode = 5 // CRC32 mismatch
	NakWrite     NakCode = 6 // Flash write failed
	NakTimeout   NakCode = 7 // CRC bytes did not arrive in time
)

// String returns a human-readable meaning for the status byte.
func (c NakCode) String() string {
	switch c {
	case NakSeqHeader:
		return "sequence header"
	case NakLength:
		return "bad length"
	case NakOverflow:
		return "overflow"
	case NakData:
		return "data timeout"
	case NakCRC:
		return "crc mismatch"
	case NakWrite:
		return "flash write"
	case NakTimeout:
		return "crc timeout"
	default:
		return "unknown"
	}
}
