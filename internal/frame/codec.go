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

package frame

import "encoding/binary"

// Mode records which interpretation Decode picked for a reply body.
type Mode int

const (
	// ModeXOR means the body was obfuscated and the reversed bytes carry the
	// expected identifier.
	ModeXOR Mode = iota
	// ModePlain means the body was sent in the clear.
	ModePlain
	// ModeUncertain means neither interpretation matched; the XOR-reversed
	// bytes are returned as a best effort.
	ModeUncertain
)

// String returns the short label used in traces.
func (m Mode) String() string {
	switch m {
	case ModeXOR:
		return "xor"
	case ModePlain:
		return "plain"
	case ModeUncertain:
		return "xor?"
	default:
		return "unknown"
	}
}

// Packetize builds a complete frame around payload:
//
//	AB CD | len(payload) u16LE | body | DC BA
//
// where body is payload followed by its CRC16 (little-endian), XORed against
// the keystream when xor is set. The length field never counts the CRC.
func Packetize(payload []byte, xor bool) []byte {
	body := make([]byte, len(payload)+TrailerLength)
	copy(body, payload)
	binary.LittleEndian.PutUint16(body[len(payload):], CRC16(payload))
	if xor {
		body = Obfuscate(body)
	}

	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, header[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload))) //nolint:gosec // length bounded by caller
	out = append(out, body...)
	out = append(out, footer[:]...)
	return out
}

// Decode recovers a payload from a received body when the sender may or may
// not have applied the XOR layer. The XOR-reversed candidate is tried first,
// then the raw bytes; whichever starts with id wins. If neither does, the
// XOR-reversed bytes are returned with ModeUncertain.
func Decode(body []byte, id [2]byte) (payload []byte, mode Mode) {
	reversed := Obfuscate(body)
	if hasPrefix(reversed, id) {
		return reversed, ModeXOR
	}
	if hasPrefix(body, id) {
		plain := make([]byte, len(body))
		copy(plain, body)
		return plain, ModePlain
	}
	return reversed, ModeUncertain
}

// DecodeReply is Decode with the handshake reply identifier.
func DecodeReply(body []byte) (payload []byte, mode Mode) {
	return Decode(body, ReplyIDBytes())
}

func hasPrefix(b []byte, id [2]byte) bool {
	return len(b) >= 2 && b[0] == id[0] && b[1] == id[1]
}
