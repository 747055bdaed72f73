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

import "sync"

// BufferPool recycles packet buffers between chunks. An upload of a 3 MiB
// image at the default chunk size builds several thousand packets, each
// rebuilt up to five times on retries.
type BufferPool struct {
	// Small buffers for packets of chunks up to SmallChunk bytes
	smallPool sync.Pool
	// Full buffers for packets up to MaxChunk bytes
	fullPool sync.Pool
}

// Buffer size categories
const (
	SmallChunk      = 256
	SmallBufferSize = SmallChunk + PacketOverhead
	FullBufferSize  = MaxChunk + PacketOverhead
)

var defaultPool = NewBufferPool()

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, SmallBufferSize)
				return &buf
			},
		},
		fullPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, FullBufferSize)
				return &buf
			},
		},
	}
}

// GetPacketBuffer returns a zero-length buffer with room for a packet
// carrying chunkSize data bytes.
func (p *BufferPool) GetPacketBuffer(chunkSize int) []byte {
	need := chunkSize + PacketOverhead
	switch {
	case need <= SmallBufferSize:
		if bufPtr, ok := p.smallPool.Get().(*[]byte); ok {
			return (*bufPtr)[:0]
		}
	case need <= FullBufferSize:
		if bufPtr, ok := p.fullPool.Get().(*[]byte); ok {
			return (*bufPtr)[:0]
		}
	}
	// Oversized requests bypass the pool
	return make([]byte, 0, need)
}

// PutBuffer returns a buffer obtained from GetPacketBuffer. Image bytes are
// cleared before the buffer is reused.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		empty := full[:0]
		p.smallPool.Put(&empty)
	case FullBufferSize:
		empty := full[:0]
		p.fullPool.Put(&empty)
	default:
		return
	}
}

// GetPacketBuffer gets a buffer from the default pool.
func GetPacketBuffer(chunkSize int) []byte {
	return defaultPool.GetPacketBuffer(chunkSize)
}

// PutBuffer returns a buffer to the default pool.
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
