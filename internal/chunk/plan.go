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

// Span locates one chunk inside the image.
type Span struct {
	Offset int
	Length int
	Seq    uint32
}

// Count returns ceil(total/size), the number of chunks for an image.
func Count(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Plan partitions an image of total bytes into consecutive, non-overlapping
// spans of size bytes with sequence numbers from 0. Only the last span may be
// shorter.
func Plan(total, size int) []Span {
	n := Count(total, size)
	spans := make([]Span, 0, n)
	for i := 0; i < n; i++ {
		off := i * size
		length := min(size, total-off)
		spans = append(spans, Span{Seq: uint32(i), Offset: off, Length: length}) //nolint:gosec // i < n
	}
	return spans
}
