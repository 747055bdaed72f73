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

package k5link

import "time"

// Progress describes an upload in flight.
type Progress struct {
	// State is the transfer phase the report was taken in
	State TransferState

	// Seq is the sequence number of the chunk just acknowledged
	Seq uint32

	// Chunks is the total number of chunks in the image
	Chunks int

	// Offset is the number of bytes acknowledged so far
	Offset int

	// Total is the image size in bytes
	Total int

	// Percent is the integer completion percentage (0 to 100)
	Percent int

	// Elapsed is the time since the upload began
	Elapsed time.Duration
}

// ProgressCallback is called after each acknowledged chunk.
// Implementations should return quickly; the transfer waits on them.
type ProgressCallback func(Progress)

// percentOf returns floor(done*100/total), or 0 when total is 0.
func percentOf(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
