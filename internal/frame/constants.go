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

// Package frame implements the K5 query/response packet format: header and
// footer sentinels, a little-endian payload length, a CRC16/XMODEM trailer and
// the optional fixed-keystream XOR layer.
package frame

// Frame sentinels
const (
	Header0 = 0xAB // First header byte
	Header1 = 0xCD // Second header byte
	Footer0 = 0xDC // First footer byte
	Footer1 = 0xBA // Second footer byte
)

// Frame layout
const (
	HeaderLength  = 2 // Sentinel bytes before the length field
	LengthLength  = 2 // Little-endian payload length, CRC not included
	TrailerLength = 2 // CRC16 (host to device) or padding (device to host)
	FooterLength  = 2 // Sentinel bytes closing the frame

	// Overhead is the wire size of a frame minus its payload.
	Overhead = HeaderLength + LengthLength + TrailerLength + FooterLength

	// MaxPayloadLength is the largest payload the 16-bit length field can describe.
	MaxPayloadLength = 0xFFFF
)

// Handshake identifiers. The inner identifier is a little-endian u16 at the
// start of the payload.
const (
	QueryID        = 0x0514
	ReplyID        = 0x0515
	ReplyFirstByte = byte(ReplyID & 0xFF)
)

// KeyLength is the period of the XOR keystream.
const KeyLength = 16

var (
	header = [HeaderLength]byte{Header0, Header1}
	footer = [FooterLength]byte{Footer0, Footer1}

	xorKey = [KeyLength]byte{
		0x16, 0x6C, 0x14, 0xE6, 0x2E, 0x91, 0x0D, 0x40,
		0x21, 0x35, 0xD5, 0x40, 0x13, 0x03, 0xE9, 0x80,
	}
)


// Key returns a copy of the XOR keystream.
func Key() [KeyLength]byte { return xorKey }

// QueryIDBytes returns the query identifier as it appears on the wire.
func QueryIDBytes() [2]byte { return [2]byte{byte(QueryID & 0xFF), byte(QueryID >> 8)} }

// ReplyIDBytes returns the reply identifier as it appears on the wire.
func ReplyIDBytes() [2]byte { return [2]byte{byte(ReplyID & 0xFF), byte(ReplyID >> 8)} }

// QueryPayload returns the fixed identification query: identifier 0x0514,
// declared length 4 and a 0xFFFFFFFF timestamp.
func QueryPayload() []byte {
	return []byte{
		byte(QueryID & 0xFF), byte(QueryID >> 8),
		0x04, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
}
