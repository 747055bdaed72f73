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

import (
	"fmt"

	"github.com/ZaparooProject/go-k5link/internal/chunk"
	"github.com/kelindar/bitmap"
)

// ValidateUpload checks the chunk and image sizes against the bootloader's
// limits. It performs no I/O.
func ValidateUpload(imageSize, chunkSize int) error {
	if chunkSize < 1 || chunkSize > chunk.MaxChunk {
		return &ValidationError{Field: "chunk size", Value: chunkSize, Min: 1, Max: chunk.MaxChunk}
	}
	if imageSize < chunk.MinFirmwareSize || imageSize > chunk.MaxFirmwareSize {
		return &ValidationError{
			Field: "firmware size",
			Value: imageSize,
			Min:   chunk.MinFirmwareSize,
			Max:   chunk.MaxFirmwareSize,
		}
	}
	return nil
}

// TransferSession tracks the position of one upload. Offset and Seq only
// move forward, and only on Ack.
type TransferSession struct {
	acked     bitmap.Bitmap
	spans     []chunk.Span
	total     int
	chunkSize int
	offset    int
	seq       uint32
	attempt   int
}

// NewTransferSession validates the sizes and plans the chunks.
func NewTransferSession(imageSize, chunkSize int) (*TransferSession, error) {
	if err := ValidateUpload(imageSize, chunkSize); err != nil {
		return nil, err
	}
	return &TransferSession{
		spans:     chunk.Plan(imageSize, chunkSize),
		total:     imageSize,
		chunkSize: chunkSize,
	}, nil
}

// Total returns the image size in bytes
func (s *TransferSession) Total() int { return s.total }

// ChunkSize returns the negotiated chunk size
func (s *TransferSession) ChunkSize() int { return s.chunkSize }

// Offset returns the number of bytes acknowledged so far
func (s *TransferSession) Offset() int { return s.offset }

// Seq returns the sequence number of the next chunk to send
func (s *TransferSession) Seq() uint32 { return s.seq }

// Chunks returns the number of chunks in the image
func (s *TransferSession) Chunks() int { return len(s.spans) }

// Attempt returns how many times the current chunk has been sent
func (s *TransferSession) Attempt() int { return s.attempt }

// Done reports whether every chunk has been acknowledged
func (s *TransferSession) Done() bool { return s.offset >= s.total }

// Current returns the span for the next chunk to send.
func (s *TransferSession) Current() (chunk.Span, bool) {
	if s.Done() || int(s.seq) >= len(s.spans) {
		return chunk.Span{}, false
	}
	return s.spans[s.seq], true
}

// Sent records one send of the current chunk.
func (s *TransferSession) Sent() {
	s.attempt++
}

// Ack advances past the current chunk.
func (s *TransferSession) Ack() error {
	span, ok := s.Current()
	if !ok {
		return fmt.Errorf("ack after transfer complete at offset %d", s.offset)
	}
	if s.acked.Contains(span.Seq) {
		return fmt.Errorf("chunk %d acknowledged twice", span.Seq)
	}
	s.acked.Set(span.Seq)
	s.offset += span.Length
	s.seq++
	s.attempt = 0
	return nil
}

// Percent returns the integer completion percentage
func (s *TransferSession) Percent() int {
	return percentOf(s.offset, s.total)
}

// AckedCount returns the number of distinct chunks acknowledged
func (s *TransferSession) AckedCount() int {
	return s.acked.Count()
}

// Missing returns the sequence numbers below Seq that were never
// acknowledged. It is empty for any session driven only through Ack.
func (s *TransferSession) Missing() []uint32 {
	if s.seq == 0 {
		return nil
	}
	var want bitmap.Bitmap
	want.Grow(s.seq - 1)
	want.Ones()
	want.Xor(s.acked)

	var missing []uint32
	want.Range(func(x uint32) {
		if x < s.seq {
			missing = append(missing, x)
		}
	})
	return missing
}
