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

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer means more bytes are needed to decode.
	ErrShortBuffer = errors.New("chunk: short buffer")
	// ErrBadMagic means a header did not start with Magic.
	ErrBadMagic = errors.New("chunk: bad magic")
)

// Header announces a transfer to the bootloader.
type Header struct {
	Magic uint32
	Total uint32
	Chunk uint16
}

// EncodeHeader returns magic(u32LE) ++ total(u32LE) ++ chunk(u16LE).
func EncodeHeader(total uint32, chunkSize uint16) []byte {
	b := make([]byte, HeaderLength)
	binary.LittleEndian.PutUint32(b[0:], Magic)
	binary.LittleEndian.PutUint32(b[4:], total)
	binary.LittleEndian.PutUint16(b[8:], chunkSize)
	return b
}

// DecodeHeader parses a transfer header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, ErrShortBuffer
	}
	h := Header{
		Magic: binary.LittleEndian.Uint32(b[0:]),
		Total: binary.LittleEndian.Uint32(b[4:]),
		Chunk: binary.LittleEndian.Uint16(b[8:]),
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: 0x%08X", ErrBadMagic, h.Magic)
	}
	return h, nil
}

// Packet is one sequenced slice of the image.
type Packet struct {
	Data []byte
	Seq  uint32
	CRC  uint32
}

// Valid reports whether the carried CRC matches the data.
func (p Packet) Valid() bool {
	return CRC32(p.Data) == p.CRC
}

// AppendPacket appends seq(u32LE) ++ len(u16LE) ++ data ++ crc32(u32LE) to dst.
func AppendPacket(dst []byte, seq uint32, data []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, seq)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(data))) //nolint:gosec // bounded by MaxChunk
	dst = append(dst, data...)
	return binary.LittleEndian.AppendUint32(dst, CRC32(data))
}

// EncodePacket returns a freshly allocated data packet.
func EncodePacket(seq uint32, data []byte) []byte {
	return AppendPacket(make([]byte, 0, PacketOverhead+len(data)), seq, data)
}

// DecodePacket parses one data packet from the front of b and returns the
// number of bytes it occupied. ErrShortBuffer is returned until the whole
// packet is present.
func DecodePacket(b []byte) (Packet, int, error) {
	if len(b) < 6 {
		return Packet{}, 0, ErrShortBuffer
	}
	seq := binary.LittleEndian.Uint32(b[0:])
	n := int(binary.LittleEndian.Uint16(b[4:]))
	total := PacketOverhead + n
	if len(b) < total {
		return Packet{}, 0, ErrShortBuffer
	}
	data := make([]byte, n)
	copy(data, b[6:6+n])
	return Packet{
		Seq:  seq,
		Data: data,
		CRC:  binary.LittleEndian.Uint32(b[6+n:]),
	}, total, nil
}
