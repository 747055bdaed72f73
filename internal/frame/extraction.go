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

// Frame is one complete, footer-validated packet lifted out of the stream.
type Frame struct {
	// Body is the payload as received, still obfuscated if the sender XORed it.
	Body []byte
	// Raw is the full frame including sentinels.
	Raw []byte
	// Trailer holds the two bytes between payload and footer: a CRC16 from the
	// host, padding from most device firmware.
	Trailer [TrailerLength]byte
}

// extractFrame copies a validated frame out of the parser buffer so that later
// buffer compaction cannot alias it.
func extractFrame(candidate []byte, payloadLen int) Frame {
	raw := make([]byte, len(candidate))
	copy(raw, candidate)

	start := HeaderLength + LengthLength
	f := Frame{
		Raw:  raw,
		Body: raw[start : start+payloadLen],
	}
	copy(f.Trailer[:], raw[start+payloadLen:start+payloadLen+TrailerLength])
	return f
}

// VerifyChecksum checks the trailer as a CRC16 under both the obfuscated and
// the plain interpretation. Device replies usually carry padding, so a false
// result is informational only.
func (f Frame) VerifyChecksum() (ok bool, mode Mode) {
	joined := make([]byte, 0, len(f.Body)+TrailerLength)
	joined = append(joined, f.Body...)
	joined = append(joined, f.Trailer[:]...)

	n := len(f.Body)
	if rev := Obfuscate(joined); CRC16(rev[:n]) == binary.LittleEndian.Uint16(rev[n:]) {
		return true, ModeXOR
	}
	if CRC16(joined[:n]) == binary.LittleEndian.Uint16(joined[n:]) {
		return true, ModePlain
	}
	return false, ModeUncertain
}
