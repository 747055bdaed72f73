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

// FindHeader returns the index of the first header sentinel in buf, or -1.
func FindHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == Header0 && buf[i+1] == Header1 {
			return i
		}
	}
	return -1
}

// PayloadLength reads the little-endian length field of a frame that starts
// at buf[0]. The caller must supply at least HeaderLength+LengthLength bytes.
func PayloadLength(buf []byte) int {
	return int(binary.LittleEndian.Uint16(buf[HeaderLength:]))
}

// TotalLength returns the wire length of a frame carrying payloadLen bytes.
func TotalLength(payloadLen int) int {
	return payloadLen + Overhead
}

// ValidateFooter reports whether the last two bytes of a candidate frame are
// the footer sentinel. Short input is never valid.
func ValidateFooter(candidate []byte) bool {
	n := len(candidate)
	if n < Overhead {
		return false
	}
	return candidate[n-2] == Footer0 && candidate[n-1] == Footer1
}
