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

package chunk

import "hash/crc32"

// CRC32 computes the reflected CRC-32 of data: polynomial 0xEDB88320,
// initial value 0xFFFFFFFF, bytes processed LSB first, final complement.
// This is the IEEE variant, so "123456789" yields 0xCBF43926.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
